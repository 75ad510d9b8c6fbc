package shape

import "strconv"

// ONNX tensor element type codes (TensorProto.DataType).
const (
	DTUndefined  int32 = 0
	DTFloat32    int32 = 1
	DTUint8      int32 = 2
	DTInt8       int32 = 3
	DTUint16     int32 = 4
	DTInt16      int32 = 5
	DTInt32      int32 = 6
	DTInt64      int32 = 7
	DTString     int32 = 8
	DTBool       int32 = 9
	DTFloat16    int32 = 10
	DTFloat64    int32 = 11
	DTUint32     int32 = 12
	DTUint64     int32 = 13
	DTComplex64  int32 = 14
	DTComplex128 int32 = 15
	DTBfloat16   int32 = 16
)

var dtypeNames = map[int32]string{
	DTFloat32:    "float32",
	DTUint8:      "uint8",
	DTInt8:       "int8",
	DTUint16:     "uint16",
	DTInt16:      "int16",
	DTInt32:      "int32",
	DTInt64:      "int64",
	DTString:     "string",
	DTBool:       "bool",
	DTFloat16:    "float16",
	DTFloat64:    "float64",
	DTUint32:     "uint32",
	DTUint64:     "uint64",
	DTComplex64:  "complex64",
	DTComplex128: "complex128",
	DTBfloat16:   "bfloat16",
}

// DataTypeName returns the human name for an ONNX element type code,
// falling back to the numeric code for unknown values.
func DataTypeName(code int32) string {
	if name, ok := dtypeNames[code]; ok {
		return name
	}
	return "dtype(" + strconv.Itoa(int(code)) + ")"
}
