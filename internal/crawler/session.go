package crawler

// queueItem is one pending BFS visit.
type queueItem struct {
	url   string
	depth int
}

// Session holds the mutable state of one crawl: the visited set, the FIFO
// queue and the discovered URL lists. The crawl is single-threaded, so the
// session needs no locking; callers that want independent crawls create
// independent sessions.
type Session struct {
	visited     map[string]struct{}
	queue       []queueItem
	pdfSeen     map[string]struct{}
	pdfURLs     []string
	programSeen map[string]struct{}
	programURLs []string
	fetched     int
}

// NewSession creates a session whose visited set is pre-seeded, typically
// with the URLs already persisted by earlier runs.
func NewSession(visited []string) *Session {
	s := &Session{
		visited:     make(map[string]struct{}, len(visited)),
		pdfSeen:     make(map[string]struct{}),
		programSeen: make(map[string]struct{}),
	}
	for _, url := range visited {
		s.visited[url] = struct{}{}
	}
	return s
}

// Visited reports whether the URL was fetched in this session or any
// persisted earlier run.
func (s *Session) Visited(url string) bool {
	_, ok := s.visited[url]
	return ok
}

// MarkVisited records the URL so it is never fetched again this run,
// including after a failed fetch.
func (s *Session) MarkVisited(url string) {
	s.visited[url] = struct{}{}
}

// Enqueue appends an unvisited URL to the tail of the queue.
func (s *Session) Enqueue(url string, depth int) {
	if s.Visited(url) {
		return
	}
	s.queue = append(s.queue, queueItem{url: url, depth: depth})
}

// Dequeue pops the head of the queue in strict arrival order.
func (s *Session) Dequeue() (string, int, bool) {
	if len(s.queue) == 0 {
		return "", 0, false
	}
	head := s.queue[0]
	s.queue = s.queue[1:]
	return head.url, head.depth, true
}

// AddPDF records a discovered PDF URL once.
func (s *Session) AddPDF(url string) {
	if _, ok := s.pdfSeen[url]; ok {
		return
	}
	s.pdfSeen[url] = struct{}{}
	s.pdfURLs = append(s.pdfURLs, url)
}

// AddProgramPage records a page classified as a program description once.
func (s *Session) AddProgramPage(url string) {
	if _, ok := s.programSeen[url]; ok {
		return
	}
	s.programSeen[url] = struct{}{}
	s.programURLs = append(s.programURLs, url)
}

// PDFURLs returns the discovered PDF URLs in discovery order.
func (s *Session) PDFURLs() []string {
	return append([]string(nil), s.pdfURLs...)
}

// ProgramPageURLs returns the classified program page URLs in discovery order.
func (s *Session) ProgramPageURLs() []string {
	return append([]string(nil), s.programURLs...)
}

// VisitedCount reports the size of the visited set, including seeded URLs.
func (s *Session) VisitedCount() int {
	return len(s.visited)
}

// FetchedCount reports how many pages this session actually fetched.
func (s *Session) FetchedCount() int {
	return s.fetched
}
