package console

import "testing"

type recordingSink struct{ lines [][]byte }

func (r *recordingSink) WriteDebug(b []byte) {
	cp := append([]byte(nil), b...)
	r.lines = append(r.lines, cp)
}

func TestFlushesOnNewline(t *testing.T) {
	sink := &recordingSink{}
	c := New(sink)
	for _, ch := range []byte("hi\n") {
		c.StoreWord(offsetPutc, uint32(ch))
	}
	if len(sink.lines) != 1 || string(sink.lines[0]) != "hi" {
		t.Fatalf("got %v", sink.lines)
	}
}

func TestShutdownPortRequiresMagic(t *testing.T) {
	c := New(nil)
	c.StoreWord(offsetShutdown, 0x12345678)
	if _, ok := c.ShutdownRequested(); ok {
		t.Fatal("shutdown should not trigger without the magic prefix")
	}
	c.StoreWord(offsetShutdown, 0x0D1E0007)
	code, ok := c.ShutdownRequested()
	if !ok || code != 7 {
		t.Fatalf("code=%d ok=%v, want 7 true", code, ok)
	}
}

func TestDbgPutsRoutesThroughSameBuffer(t *testing.T) {
	sink := &recordingSink{}
	c := New(sink)
	c.WriteDebug([]byte("hello\n"))
	if len(sink.lines) != 1 || string(sink.lines[0]) != "hello" {
		t.Fatalf("got %v", sink.lines)
	}
}
