package binary

import (
	"bytes"
	"errors"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data, 0)

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	_, err := r.ReadByte()
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestReaderReadBytes(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05}, 0)

	got, err := r.ReadBytes(3)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("ReadBytes: got %v, want [1 2 3]", got)
	}
	if _, err := r.ReadBytes(10); err == nil {
		t.Error("expected error for reading past end")
	}
	if r.Len() != 2 {
		t.Errorf("failed read must not consume: len %d", r.Len())
	}
}

func TestReaderSub(t *testing.T) {
	r := NewReader([]byte{0xAA, 0x01, 0x02, 0x03}, 100)
	if _, err := r.ReadByte(); err != nil {
		t.Fatal(err)
	}
	sub, err := r.Sub(2)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if sub.Position() != 101 {
		t.Errorf("sub position: got %d, want 101", sub.Position())
	}
	if sub.Len() != 2 || r.Len() != 1 {
		t.Errorf("lengths: sub %d, parent %d", sub.Len(), r.Len())
	}
	if _, err := r.Sub(5); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestReaderReadU32(t *testing.T) {
	tests := []struct {
		name    string
		encoded []byte
		want    uint32
		wantErr error
	}{
		{"zero", []byte{0x00}, 0, nil},
		{"one", []byte{0x01}, 1, nil},
		{"127", []byte{0x7f}, 127, nil},
		{"128", []byte{0x80, 0x01}, 128, nil},
		{"624485", []byte{0xe5, 0x8e, 0x26}, 624485, nil},
		{"max", []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF, nil},
		{"padded zero", []byte{0x80, 0x00}, 0, ErrNonMinimal},
		{"padded one", []byte{0x81, 0x80, 0x00}, 0, ErrNonMinimal},
		{"unused bits set", []byte{0xff, 0xff, 0xff, 0xff, 0x1f}, 0, ErrOverflow},
		{"too long", []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}, 0, ErrOverflow},
		{"truncated", []byte{0x80, 0x80}, 0, ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewReader(tt.encoded, 0).ReadU32()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got err %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadU32: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderReadS32(t *testing.T) {
	tests := []struct {
		name    string
		encoded []byte
		want    int32
		wantErr error
	}{
		{"zero", []byte{0x00}, 0, nil},
		{"minus one", []byte{0x7f}, -1, nil},
		{"63", []byte{0x3f}, 63, nil},
		{"64", []byte{0xc0, 0x00}, 64, nil},
		{"-64", []byte{0x40}, -64, nil},
		{"-65", []byte{0xbf, 0x7f}, -65, nil},
		{"min", []byte{0x80, 0x80, 0x80, 0x80, 0x78}, -2147483648, nil},
		{"max", []byte{0xff, 0xff, 0xff, 0xff, 0x07}, 2147483647, nil},
		{"padded zero", []byte{0x80, 0x00}, 0, ErrNonMinimal},
		{"padded minus one", []byte{0xff, 0x7f}, 0, ErrNonMinimal},
		{"bad sign bits", []byte{0xff, 0xff, 0xff, 0xff, 0x4f}, 0, ErrOverflow},
		{"too long", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x7f}, 0, ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewReader(tt.encoded, 0).ReadS32()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got err %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadS32: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderReadS64Bounds(t *testing.T) {
	w := NewWriter()
	w.WriteS64(-9223372036854775808)
	w.WriteS64(9223372036854775807)
	r := NewReader(w.Bytes(), 0)

	minV, err := r.ReadS64()
	if err != nil || minV != -9223372036854775808 {
		t.Errorf("min: got %d, %v", minV, err)
	}
	maxV, err := r.ReadS64()
	if err != nil || maxV != 9223372036854775807 {
		t.Errorf("max: got %d, %v", maxV, err)
	}

	bad := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}
	if _, err := NewReader(bad, 0).ReadS64(); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestReaderReadS33(t *testing.T) {
	tests := []struct {
		encoded []byte
		want    int64
	}{
		{[]byte{0x40}, -64},
		{[]byte{0x7f}, -1},
		{[]byte{0x05}, 5},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}
	for _, tt := range tests {
		got, err := NewReader(tt.encoded, 0).ReadS33()
		if err != nil {
			t.Errorf("ReadS33(%x): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadS33(%x): got %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestReaderReadName(t *testing.T) {
	r := NewReader([]byte{0x05, 'h', 'e', 'l', 'l', 'o'}, 0)
	name, err := r.ReadName()
	if err != nil {
		t.Fatalf("ReadName: %v", err)
	}
	if name != "hello" {
		t.Errorf("got %q, want hello", name)
	}

	if _, err := NewReader([]byte{0x02, 0xff, 0xfe}, 0).ReadName(); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
	if _, err := NewReader([]byte{0x05, 'h', 'i'}, 0).ReadName(); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestReaderFixedWidth(t *testing.T) {
	w := NewWriter()
	w.WriteU32LE(0x6d736100)
	w.WriteU64LE(0x0102030405060708)
	r := NewReader(w.Bytes(), 0)

	v32, err := r.ReadU32LE()
	if err != nil || v32 != 0x6d736100 {
		t.Errorf("ReadU32LE: got 0x%x, %v", v32, err)
	}
	v64, err := r.ReadU64LE()
	if err != nil || v64 != 0x0102030405060708 {
		t.Errorf("ReadU64LE: got 0x%x, %v", v64, err)
	}
	if _, err := r.ReadU32LE(); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestReaderWrapError(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02}, 10)
	_, _ = r.ReadByte()

	err := r.WrapError("type section", errors.New("boom"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %T", err)
	}
	if pe.Position != 11 || pe.Section != "type section" {
		t.Errorf("got %+v", pe)
	}

	// the innermost position is kept
	outer := NewReader(nil, 0).WrapError("module", err)
	if !errors.As(outer, &pe) || pe.Position != 11 {
		t.Errorf("outer wrap replaced position: %v", outer)
	}
}

func TestWriterMinimal(t *testing.T) {
	tests := []struct {
		name string
		fn   func(w *Writer)
		want []byte
	}{
		{"u32 0", func(w *Writer) { w.WriteU32(0) }, []byte{0x00}},
		{"u32 128", func(w *Writer) { w.WriteU32(128) }, []byte{0x80, 0x01}},
		{"s32 -1", func(w *Writer) { w.WriteS32(-1) }, []byte{0x7f}},
		{"s32 64", func(w *Writer) { w.WriteS32(64) }, []byte{0xc0, 0x00}},
		{"s64 -65", func(w *Writer) { w.WriteS64(-65) }, []byte{0xbf, 0x7f}},
		{"name", func(w *Writer) { w.WriteName("ab") }, []byte{0x02, 'a', 'b'}},
		{"vec", func(w *Writer) { w.WriteVec([]byte{9}) }, []byte{0x01, 0x09}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			tt.fn(w)
			if !bytes.Equal(w.Bytes(), tt.want) {
				t.Errorf("got %x, want %x", w.Bytes(), tt.want)
			}
		})
	}
}
