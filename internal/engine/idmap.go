package engine

// IDMap records the server ids assigned to temporary ids during one cycle.
// Push consults it to rewrite foreign keys in payloads of rows that were read
// before their parent was created remotely.
type IDMap struct {
	m map[string]map[int64]int64
}

func NewIDMap() *IDMap {
	return &IDMap{m: make(map[string]map[int64]int64)}
}

func (m *IDMap) Put(table string, tempID, id int64) {
	t := m.m[table]
	if t == nil {
		t = make(map[int64]int64)
		m.m[table] = t
	}
	t[tempID] = id
}

func (m *IDMap) Resolve(table string, tempID int64) (int64, bool) {
	id, ok := m.m[table][tempID]
	return id, ok
}

func (m *IDMap) Len() int {
	n := 0
	for _, t := range m.m {
		n += len(t)
	}
	return n
}
