package continuity

// Last 查询最近一次提交，不存在时 ok=false
func (s *State) Last(key Key) (SubmissionRecord, bool) {
	r, ok := s.LastRecorded[key.String()]
	return r, ok
}

// SetLast 无条件覆盖最近一次提交。
// 不与旧值比较先后：较早的提交同样会覆盖较晚的记录。
func (s *State) SetLast(rec SubmissionRecord) {
	s.normalize()
	s.LastRecorded[rec.Key().String()] = rec
}
