package dataset

// Partition splits the dataset into chunks of size records; only the last
// chunk may be shorter. A size below 1 yields a single chunk.
func Partition(ds *Dataset, size int) []Chunk {
	total := ds.Len()
	if total == 0 {
		return nil
	}
	if size < 1 {
		size = total
	}

	chunks := make([]Chunk, 0, (total+size-1)/size)
	for start := 0; start < total; start += size {
		end := min(start+size, total)
		recs := make([]Record, end-start)
		copy(recs, ds.Records[start:end])
		chunks = append(chunks, Chunk{
			Columns:    ds.Columns,
			Records:    recs,
			StartIndex: start,
			Total:      total,
		})
	}
	return chunks
}

// DocumentChunks gives every document its own chunk, for runs without a
// survey table. Chunk i covers position i.
func DocumentChunks(docs []Document) []Chunk {
	chunks := make([]Chunk, 0, len(docs))
	for i, d := range docs {
		chunks = append(chunks, Chunk{
			StartIndex: i,
			Total:      len(docs),
			Document:   d.Name,
		})
	}
	return chunks
}
