// Package dotest 提供内存版的 DigitalOcean 域名接口，供测试使用
package dotest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Record 服务端保存的记录
type Record struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
	Data string `json:"data"`
	TTL  int    `json:"ttl"`
}

// Server 内存版 DigitalOcean 接口
type Server struct {
	*httptest.Server

	Token string

	mu         sync.Mutex
	domains    map[string][]Record
	nextID     int64
	failDelete map[string]int
	calls      []string
}

// NewServer 启动假服务，domains 为账号下已有的域名
func NewServer(token string, domains ...string) *Server {
	s := &Server{
		Token:      token,
		domains:    make(map[string][]Record),
		nextID:     1000,
		failDelete: make(map[string]int),
	}
	for _, d := range domains {
		s.domains[d] = nil
	}
	s.Server = httptest.NewServer(s)
	return s
}

// AddRecord 直接写入一条记录，返回记录ID
func (s *Server) AddRecord(domain string, r Record) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	s.domains[domain] = append(s.domains[domain], r)
	return strconv.FormatInt(r.ID, 10)
}

// Records 返回域名下当前的记录
func (s *Server) Records(domain string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.domains[domain]...)
}

// FailDelete 让指定ID的删除请求返回给定状态码
func (s *Server) FailDelete(id string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDelete[id] = status
}

// Calls 返回按顺序收到的请求 ("METHOD /path")
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls = append(s.calls, r.Method+" "+r.URL.Path)
	s.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+s.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"id": "unauthorized", "message": "Unable to authenticate you."})
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "domains" && r.Method == http.MethodGet:
		s.handleDomains(w)
	case len(parts) == 3 && parts[0] == "domains" && parts[2] == "records" && r.Method == http.MethodGet:
		s.handleList(w, parts[1])
	case len(parts) == 3 && parts[0] == "domains" && parts[2] == "records" && r.Method == http.MethodPost:
		s.handleCreate(w, r, parts[1])
	case len(parts) == 4 && parts[0] == "domains" && parts[2] == "records" && r.Method == http.MethodDelete:
		s.handleDelete(w, parts[1], parts[3])
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"id": "not_found", "message": "The resource you were accessing could not be found."})
	}
}

func (s *Server) handleDomains(w http.ResponseWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type domain struct {
		Name string `json:"name"`
	}
	list := []domain{}
	for name := range s.domains {
		list = append(list, domain{Name: name})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"domains": list})
}

func (s *Server) handleList(w http.ResponseWriter, domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.domains[domain]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"id": "not_found", "message": "domain not found"})
		return
	}
	if records == nil {
		records = []Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"domain_records": records})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, domain string) {
	var in Record
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"id": "bad_request", "message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.domains[domain]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"id": "not_found", "message": "domain not found"})
		return
	}
	s.nextID++
	in.ID = s.nextID
	s.domains[domain] = append(s.domains[domain], in)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"domain_record": in})
}

func (s *Server) handleDelete(w http.ResponseWriter, domain, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status, ok := s.failDelete[id]; ok {
		writeJSON(w, status, map[string]string{"id": "server_error", "message": fmt.Sprintf("cannot delete %s", id)})
		return
	}

	records := s.domains[domain]
	for i, rec := range records {
		if strconv.FormatInt(rec.ID, 10) == id {
			s.domains[domain] = append(records[:i:i], records[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"id": "not_found", "message": "record not found"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
