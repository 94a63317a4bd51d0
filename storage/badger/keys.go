package badger

// Key prefixes for different data types
const (
	documentPrefix     = "doc:"
	documentHashPrefix = "dochash:"
	documentURLPrefix  = "docurl:"
	vectorPrefix       = "vec:"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id string) []byte {
	return []byte(documentPrefix + id)
}

// makeHashKey generates the content hash index key.
// Format: prefix:hash -> document ID
func makeHashKey(hash string) []byte {
	return []byte(documentHashPrefix + hash)
}

// makeURLKey generates the source URL index key.
// Format: prefix:url -> document ID
func makeURLKey(url string) []byte {
	return []byte(documentURLPrefix + url)
}

// makeVectorKey generates a key for a vector record by chunk ID.
func makeVectorKey(id string) []byte {
	return []byte(vectorPrefix + id)
}
