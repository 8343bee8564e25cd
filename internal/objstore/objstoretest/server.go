// Package objstoretest runs an in-memory, path-style S3 endpoint that
// covers the calls objstore.Store makes: ListObjectsV2, GetObject,
// PutObject and DeleteObjects.
package objstoretest

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"intake/internal/objstore"
)

// Server is a fake S3 endpoint backed by a map.
type Server struct {
	*httptest.Server

	// PageSize caps the keys returned per list page. 1000 when zero.
	PageSize int

	mu        sync.Mutex
	objects   map[string][]byte // "bucket/key" -> body
	listCalls int
}

// NewServer starts a Server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{objects: map[string][]byte{}}
	s.Server = httptest.NewServer(s)
	t.Cleanup(s.Close)
	return s
}

// Store returns an objstore.Store pointed at the server.
func (s *Server) Store(t testing.TB) *objstore.Store {
	t.Helper()
	store, err := objstore.New(objstore.Options{
		Endpoint:        s.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("objstore.New: %v", err)
	}
	return store
}

// Put stores an object directly.
func (s *Server) Put(bucket, key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = append([]byte(nil), body...)
}

// Object returns a stored object.
func (s *Server) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[bucket+"/"+key]
	return b, ok
}

// Keys returns the sorted keys of bucket.
func (s *Server) Keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keysLocked(bucket, "")
}

// ListCalls counts the list pages served so far.
func (s *Server) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *Server) keysLocked(bucket, prefix string) []string {
	var keys []string
	for k := range s.objects {
		b, key, _ := strings.Cut(k, "/")
		if b == bucket && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// ── Handler ────────────────────────────────────────────────

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	q := r.URL.Query()

	switch {
	case bucket == "":
		writeError(w, http.StatusBadRequest, "InvalidBucketName", "missing bucket")
	case key == "" && r.Method == http.MethodGet && q.Get("list-type") == "2":
		s.list(w, bucket, q)
	case key == "" && r.Method == http.MethodPost && q.Has("delete"):
		s.deleteObjects(w, r, bucket)
	case key != "" && r.Method == http.MethodGet:
		s.get(w, bucket, key)
	case key != "" && r.Method == http.MethodPut:
		s.put(w, r, bucket, key)
	default:
		writeError(w, http.StatusNotImplemented, "NotImplemented", r.Method+" "+r.URL.String())
	}
}

type listResult struct {
	XMLName               xml.Name     `xml:"ListBucketResult"`
	Name                  string       `xml:"Name"`
	Prefix                string       `xml:"Prefix"`
	KeyCount              int          `xml:"KeyCount"`
	MaxKeys               int          `xml:"MaxKeys"`
	IsTruncated           bool         `xml:"IsTruncated"`
	ContinuationToken     string       `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string       `xml:"NextContinuationToken,omitempty"`
	Contents              []listObject `xml:"Contents"`
}

type listObject struct {
	Key  string `xml:"Key"`
	Size int    `xml:"Size"`
}

// list treats the continuation token as the last key of the previous page.
func (s *Server) list(w http.ResponseWriter, bucket string, q url.Values) {
	prefix := q.Get("prefix")
	token := q.Get("continuation-token")

	s.mu.Lock()
	s.listCalls++
	var keys []string
	for _, k := range s.keysLocked(bucket, prefix) {
		if k > token {
			keys = append(keys, k)
		}
	}
	size := s.PageSize
	if size <= 0 {
		size = 1000
	}
	res := listResult{Name: bucket, Prefix: prefix, MaxKeys: size, ContinuationToken: token}
	for i, k := range keys {
		if i == size {
			res.IsTruncated = true
			res.NextContinuationToken = keys[i-1]
			break
		}
		res.Contents = append(res.Contents, listObject{Key: k, Size: len(s.objects[bucket+"/"+k])})
	}
	s.mu.Unlock()

	res.KeyCount = len(res.Contents)
	writeXML(w, http.StatusOK, res)
}

func (s *Server) deleteObjects(w http.ResponseWriter, r *http.Request, bucket string) {
	var req struct {
		Objects []struct {
			Key string `xml:"Key"`
		} `xml:"Object"`
	}
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MalformedXML", err.Error())
		return
	}
	s.mu.Lock()
	for _, o := range req.Objects {
		delete(s.objects, bucket+"/"+o.Key)
	}
	s.mu.Unlock()
	writeXML(w, http.StatusOK, struct {
		XMLName xml.Name `xml:"DeleteResult"`
	}{})
}

func (s *Server) get(w http.ResponseWriter, bucket, key string) {
	body, ok := s.Object(bucket, key)
	if !ok {
		writeError(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) put(w http.ResponseWriter, r *http.Request, bucket, key string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "IncompleteBody", err.Error())
		return
	}
	s.Put(bucket, key, body)
	w.Header().Set("ETag", `"`+strconv.Itoa(len(body))+`"`)
	w.WriteHeader(http.StatusOK)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeXML(w, status, struct {
		XMLName xml.Name `xml:"Error"`
		Code    string   `xml:"Code"`
		Message string   `xml:"Message"`
	}{Code: code, Message: msg})
}

func writeXML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	io.WriteString(w, xml.Header)
	xml.NewEncoder(w).Encode(v)
}
