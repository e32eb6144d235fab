package chain

// BlockStats contains statistics of a block.
type BlockStats struct {
	ID    string
	Block string
	Tasks []TaskStats
}

// Stats returns statistics of block tasks.
func (b *Block) Stats() BlockStats {
	s := BlockStats{
		ID:    b.id,
		Block: b.name,
	}
	for _, t := range b.Tasks() {
		s.Tasks = append(s.Tasks, t.Stats())
	}
	return s
}

// Calls returns total number of task calls of the block.
func (s BlockStats) Calls() uint64 {
	var n uint64
	for _, t := range s.Tasks {
		n += t.Calls
	}
	return n
}
