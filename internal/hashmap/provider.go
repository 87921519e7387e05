package hashmap

// ChainedEntryMemoryProvider resolves a logical key/value schema into fixed
// byte offsets within an Entry's Key and Value regions, and projects raw
// entry bytes back into Records.
type ChainedEntryMemoryProvider struct {
	KeyFields   []FieldOffset
	ValueFields []FieldOffset
	keySize     int
	valueSize   int
}

// CreateFieldOffsets lays out keyFields and valueFields back to back,
// returning each as its own FieldOffset slice with offsets local to its own
// region (key offsets start at 0, value offsets start at 0).
func CreateFieldOffsets(keyFields, valueFields []SchemaField) ([]FieldOffset, []FieldOffset) {
	keyOffsets := make([]FieldOffset, 0, len(keyFields))
	off := 0
	for _, f := range keyFields {
		keyOffsets = append(keyOffsets, FieldOffset{FieldIdentifier: f.Name, ByteOffset: off, DataType: f.Type})
		off += f.Type.Size()
	}
	valueOffsets := make([]FieldOffset, 0, len(valueFields))
	off = 0
	for _, f := range valueFields {
		valueOffsets = append(valueOffsets, FieldOffset{FieldIdentifier: f.Name, ByteOffset: off, DataType: f.Type})
		off += f.Type.Size()
	}
	return keyOffsets, valueOffsets
}

// NewChainedEntryMemoryProvider builds a provider from a key schema and a
// value schema.
func NewChainedEntryMemoryProvider(keyFields, valueFields []SchemaField) *ChainedEntryMemoryProvider {
	keyOffsets, valueOffsets := CreateFieldOffsets(keyFields, valueFields)
	keySize, valueSize := 0, 0
	for _, f := range keyFields {
		keySize += f.Type.Size()
	}
	for _, f := range valueFields {
		valueSize += f.Type.Size()
	}
	return &ChainedEntryMemoryProvider{KeyFields: keyOffsets, ValueFields: valueOffsets, keySize: keySize, valueSize: valueSize}
}

func (p *ChainedEntryMemoryProvider) KeySize() int   { return p.keySize }
func (p *ChainedEntryMemoryProvider) ValueSize() int { return p.valueSize }

// EncodeKey projects rec's key fields into a freshly allocated byte slice
// suitable for FindOrCreateEntry.
func (p *ChainedEntryMemoryProvider) EncodeKey(rec Record) []byte {
	buf := make([]byte, p.keySize)
	for _, fo := range p.KeyFields {
		encodeField(buf, fo, rec.Get(fo.FieldIdentifier))
	}
	return buf
}

// GetKey projects an entry's raw key bytes back into a Record.
func (p *ChainedEntryMemoryProvider) GetKey(e *Entry) Record {
	rec := NewRecord()
	for _, fo := range p.KeyFields {
		rec.Set(fo.FieldIdentifier, decodeField(e.Key, fo))
	}
	return rec
}

// GetValue projects an entry's raw value bytes back into a Record.
func (p *ChainedEntryMemoryProvider) GetValue(e *Entry) Record {
	rec := NewRecord()
	for _, fo := range p.ValueFields {
		rec.Set(fo.FieldIdentifier, decodeField(e.Value, fo))
	}
	return rec
}

// CopyValuesToEntry writes rec's value fields into the entry's raw value
// region, overwriting whatever was there.
func (p *ChainedEntryMemoryProvider) CopyValuesToEntry(e *Entry, rec Record) {
	for _, fo := range p.ValueFields {
		encodeField(e.Value, fo, rec.Get(fo.FieldIdentifier))
	}
}
