package sqlpool

// ReapIdle runs the idle part of the maintenance pass once.
func (p *ElasticPool) ReapIdle() int {
	return p.reapIdle()
}

// EnsureMinSize runs the refill part of the maintenance pass once.
func (p *ElasticPool) EnsureMinSize() {
	p.ensureMinSize()
}

// QueryCount returns the number of queries the DB has run.
func (db *DB) QueryCount() int64 {
	return db.stats.queries.Load()
}
