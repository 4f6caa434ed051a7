package link

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sigurn/crc16"
)

func decodeAll(t *testing.T, d *Decoder, in []byte) ([]Frame, []error) {
	t.Helper()
	var frames []Frame
	var errs []error
	for _, b := range in {
		f, ok, err := d.Feed(b)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			f.Payload = append([]byte(nil), f.Payload...)
			frames = append(frames, f)
		}
	}
	return frames, errs
}

func TestCRCTableIsCCITTFalse(t *testing.T) {
	if got := crc16.Checksum([]byte("123456789"), crcTable); got != 0x29B1 {
		t.Fatalf("check value %#04x", got)
	}
}

func TestFrameEncodeDecode(t *testing.T) {
	enc, err := AppendFrame(nil, TypeSetup, []byte{0, 5, 0, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != Sync || enc[1] != byte(TypeSetup) || enc[2] != 8 || len(enc) != 13 {
		t.Fatalf("frame % x", enc)
	}
	sum := crc16.Checksum(enc[1:11], crcTable)
	if enc[11] != byte(sum>>8) || enc[12] != byte(sum) {
		t.Fatalf("crc not big-endian")
	}

	// Leading noise is skipped while hunting for sync.
	stream := append([]byte{0x00, 0x13}, enc...)
	stream, _ = AppendFrame(stream, TypeAck, []byte{1})
	stream, _ = AppendFrame(stream, TypeReply, nil)

	var d Decoder
	frames, errs := decodeAll(t, &d, stream)
	if len(errs) != 0 {
		t.Fatalf("errors %v", errs)
	}
	if len(frames) != 3 {
		t.Fatalf("frames %d", len(frames))
	}
	if frames[0].Type != TypeSetup || frames[0].Payload[1] != 5 {
		t.Fatalf("frame 0 %+v", frames[0])
	}
	if frames[1].Type != TypeAck || !bytes.Equal(frames[1].Payload, []byte{1}) {
		t.Fatalf("frame 1 %+v", frames[1])
	}
	if frames[2].Type != TypeReply || len(frames[2].Payload) != 0 {
		t.Fatalf("frame 2 %+v", frames[2])
	}
}

func TestDecoderRejectsOversizeAndResyncs(t *testing.T) {
	stream := []byte{Sync, byte(TypeOut), MaxPayload + 1}
	stream, _ = AppendFrame(stream, TypeIn, []byte{8})

	var d Decoder
	frames, errs := decodeAll(t, &d, stream)
	if len(errs) != 1 || !errors.Is(errs[0], ErrBadFrame) {
		t.Fatalf("errors %v", errs)
	}
	if len(frames) != 1 || frames[0].Type != TypeIn {
		t.Fatalf("frames %+v", frames)
	}
}

func TestDecoderCRCMismatch(t *testing.T) {
	bad, _ := AppendFrame(nil, TypeOut, []byte{1, 2, 3})
	bad[4] ^= 0xFF
	good, _ := AppendFrame(nil, TypeOut, []byte{1, 2, 3})

	var d Decoder
	frames, errs := decodeAll(t, &d, append(bad, good...))
	if len(errs) != 1 || !errors.Is(errs[0], ErrCRC) {
		t.Fatalf("errors %v", errs)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0].Payload, []byte{1, 2, 3}) {
		t.Fatalf("frames %+v", frames)
	}
}

func TestAppendFrameTooLong(t *testing.T) {
	if _, err := AppendFrame(nil, TypeOut, make([]byte, 9)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("err %v", err)
	}
}
