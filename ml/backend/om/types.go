package om

import "github.com/easydeploy/infercore/ml"

// defaultType is used for blobs whose native type the table does not know.
const defaultType = ml.DTypeF32

// newTypeTable maps native element types to host types. The host type
// carries the byte width used for allocation.
func newTypeTable() map[DataType]ml.DType {
	return map[DataType]ml.DType{
		DataTypeFloat:   ml.DTypeF32,
		DataTypeFloat16: ml.DTypeF16,
		DataTypeBF16:    ml.DTypeBF16,
		DataTypeDouble:  ml.DTypeF64,
		DataTypeInt8:    ml.DTypeI8,
		DataTypeInt16:   ml.DTypeI16,
		DataTypeInt32:   ml.DTypeI32,
		DataTypeInt64:   ml.DTypeI64,
		DataTypeUint8:   ml.DTypeU8,
		DataTypeUint16:  ml.DTypeU16,
		DataTypeUint32:  ml.DTypeU32,
		DataTypeUint64:  ml.DTypeU64,
		DataTypeBool:    ml.DTypeBool,
	}
}

// DataTypeOf returns the native type for a host type.
func DataTypeOf(t ml.DType) DataType {
	for native, host := range newTypeTable() {
		if host == t {
			return native
		}
	}
	return DataTypeUndefined
}

func (t DataType) String() string {
	if host, ok := newTypeTable()[t]; ok {
		return host.String()
	}
	return "undefined"
}

// Size returns the element width in bytes, 0 when unknown.
func (t DataType) Size() int {
	return newTypeTable()[t].Size()
}
