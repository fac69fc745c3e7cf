package badger

// Key prefixes for different data types
const (
	intentNodePrefix  = "intnode:"
	intentPositionSeq = "intseq"
	lexicalDocPrefix  = "lexdoc:"
	lexicalPostPrefix = "lexpost:"
	lexicalStatsKey   = "lexstats"
	vectorDocPrefix   = "vecdoc:"
	keySeparator      = 0x00
)

// makeIntentNodeKey generates a key for an intent node by code.
func makeIntentNodeKey(code string) []byte {
	return []byte(intentNodePrefix + code)
}

// makeLexicalDocKey generates a key for a lexical document by chunk id.
func makeLexicalDocKey(id string) []byte {
	return []byte(lexicalDocPrefix + id)
}

// makePostingKey generates a composite key for the inverted index.
// Format: prefix term 0x00 id
func makePostingKey(term, id string) []byte {
	buf := make([]byte, 0, len(lexicalPostPrefix)+len(term)+1+len(id))
	buf = append(buf, lexicalPostPrefix...)
	buf = append(buf, term...)
	buf = append(buf, keySeparator)
	return append(buf, id...)
}

// makePartialPostingKey generates the prefix shared by all postings of a term.
func makePartialPostingKey(term string) []byte {
	buf := make([]byte, 0, len(lexicalPostPrefix)+len(term)+1)
	buf = append(buf, lexicalPostPrefix...)
	buf = append(buf, term...)
	return append(buf, keySeparator)
}

// makeVectorDocKey generates a composite key for a chunk inside a collection.
// Format: prefix collection 0x00 id
func makeVectorDocKey(collection, id string) []byte {
	buf := makePartialVectorDocKey(collection)
	return append(buf, id...)
}

// makePartialVectorDocKey generates the prefix shared by all chunks of a collection.
func makePartialVectorDocKey(collection string) []byte {
	buf := make([]byte, 0, len(vectorDocPrefix)+len(collection)+1)
	buf = append(buf, vectorDocPrefix...)
	buf = append(buf, collection...)
	return append(buf, keySeparator)
}
