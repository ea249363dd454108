package msghdr

import (
	"errors"
	"testing"
	"time"
)

func TestPutParse(t *testing.T) {
	buf := make([]byte, 128)
	for i := range buf {
		buf[i] = 0xAB
	}
	sent := time.UnixMicro(1_700_000_000_123_456)

	n, err := Put(buf, Header{Seq: 42, Sent: sent})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if want := "Message #42 1700000000123456"; string(buf[:n]) != want {
		t.Fatalf("header text = %q, want %q", buf[:n], want)
	}
	for i := n; i < Size; i++ {
		if buf[i] != 0 {
			t.Fatalf("byte %d of header area = %#x, want 0", i, buf[i])
		}
	}
	if buf[Size] != 0xAB {
		t.Fatal("Put wrote past the header area")
	}

	h, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if h.Seq != 42 || !h.Sent.Equal(sent) {
		t.Fatalf("Parse = %+v, want seq 42 sent %v", h, sent)
	}
}

func TestPutShortBuffer(t *testing.T) {
	if _, err := Put(make([]byte, Size-1), Header{}); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestParseMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"no prefix":     "Msg #1 2",
		"no timestamp":  "Message #1",
		"bad sequence":  "Message #x 2",
		"bad timestamp": "Message #1 y",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			buf := make([]byte, Size)
			copy(buf, text)
			if _, err := Parse(buf); !errors.Is(err, ErrMalformed) {
				t.Fatalf("Parse(%q) error = %v, want ErrMalformed", text, err)
			}
		})
	}
}
