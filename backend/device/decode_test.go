package device

import (
	"testing"
	"unsafe"
)

func bytesOf4(v uint32) []byte {
	b := make([]byte, 4)
	*(*uint32)(unsafe.Pointer(&b[0])) = v
	return b
}

func bytesOf8(v uint64) []byte {
	b := make([]byte, 8)
	*(*uint64)(unsafe.Pointer(&b[0])) = v
	return b
}

func TestDecodeScalarNativeTypes(t *testing.T) {
	if v, err := decodeScalar("u32", bytesOf4(7)); err != nil || v.(uint32) != 7 {
		t.Errorf("u32: got %v, %v", v, err)
	}
	if v, err := decodeScalar("i32", bytesOf4(uint32(int32(-3)))); err != nil || v.(int32) != -3 {
		t.Errorf("i32: got %v, %v", v, err)
	}
	if v, err := decodeScalar("u64", bytesOf8(99)); err != nil || v.(uint64) != 99 {
		t.Errorf("u64: got %v, %v", v, err)
	}
	if v, err := decodeScalar("i64", bytesOf8(uint64(int64(-99)))); err != nil || v.(int64) != -99 {
		t.Errorf("i64: got %v, %v", v, err)
	}
}

func TestDecodeScalarRejectsWrongWidth(t *testing.T) {
	if _, err := decodeScalar("u32", bytesOf8(1)); err == nil {
		t.Fatal("expected an error for an 8-byte source decoded as a 4-byte element")
	}
	if _, err := decodeScalar("u64", bytesOf4(1)); err == nil {
		t.Fatal("expected an error for a 4-byte source decoded as an 8-byte element")
	}
}

func TestDecodeScalarRejectsEmptyAndUnknownElement(t *testing.T) {
	if _, err := decodeScalar("u32", nil); err == nil {
		t.Fatal("expected an error decoding from an empty byte slice")
	}
	if _, err := decodeScalar("struct", bytesOf4(1)); err == nil {
		t.Fatal("expected an error for an element type with no native scalar decoding")
	}
}
