// This demo simulates several parallel editors in a single web page, forking
// and syncing their work. The state for the web page is kept on this
// server, where all merging operations are made.
//
// We assume that there is no message loss or out-of-order network
// shenanigans for this demo. An actual, multi-agent edit fest requires a
// more robust assumption (or, preferably, that the CRDT is also implemented
// client-side for proper offline syncing).
package main

// Example session:
//  1) User loads demo home webpage (/load)
//  2) Server answers with all current sites, their IDs and contents.
//  3) User edits content for a site (/edit #1)
//  4) User edits content for a site (/edit #2)
//  5) User forks a site (/fork)
//  6) Server answers with ID and content of the new site.
//  7) User merges two sites (/sync)
//  8) Server responds with new content for the merged-into site.
//
// Note that connection state is not kept in the server, only on the client.

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/brunokim/runtree"
	"github.com/brunokim/runtree/internal/textdiff"
)

var (
	port          = flag.Int("port", 8009, "port to run server")
	debug         = flag.Bool("debug", false, "whether to dump debug information. Default debug file is log_{{datetime}}.jsonl")
	debugFilename = flag.String("debug_file", "", "file to dump debug information in JSONL format. Implies --debug")

	staticDir = flag.String("static_dir", "", "Directory with static files")
	debugDir  = flag.String("debug_dir", "", "Directory with static debug files")
)

// -----

type debugMsgType int

const (
	writeDebug debugMsgType = iota
	syncDebug
)

type debugMessage struct {
	msgType debugMsgType
	payload interface{}
}

// -----

// siteInfo is one editor's view: a Replica tracking CRDT structure, the
// plain-text buffer it describes, and the append-only log of edits this
// site knows about (its own, plus anything merged in from elsewhere),
// used to gossip edits transitively during /sync.
type siteInfo struct {
	id      string
	replica *runtree.Replica
	text    []rune
	log     []runtree.CrdtEdit
	mu      *sync.Mutex
	order   int

	// mergedUpTo tracks, per remote site ID, how many entries of that
	// remote's log have already been folded into this site.
	mergedUpTo map[string]int
}

func sortSiteInfos(sites []siteInfo) {
	sort.Slice(sites, func(i, j int) bool {
		return sites[i].order < sites[j].order
	})
}

type state struct {
	sync.Mutex

	debugMsgs chan<- debugMessage

	sitemap sync.Map // map[string]siteInfo
	maplen  int

	numLoadRequests int
	numEditRequests int
	numForkRequests int
	numSyncRequests int
}

func newState(debugMsgs chan<- debugMessage) *state {
	replica := runtree.New(0)
	id := replica.ID().String()
	site := siteInfo{
		id:         id,
		replica:    replica,
		mu:         &sync.Mutex{},
		order:      0,
		mergedUpTo: make(map[string]int),
	}
	s := &state{debugMsgs: debugMsgs, maplen: 1}
	s.sitemap.Store(id, site)
	return s
}

func (s *state) siteInfos() []siteInfo {
	var sites []siteInfo
	s.sitemap.Range(func(key, val interface{}) bool {
		sites = append(sites, val.(siteInfo))
		return true
	})
	sortSiteInfos(sites)
	return sites
}

// -----

func main() {
	flag.Parse()

	debugMsgs := runDebug()
	s := newState(debugMsgs)

	http.Handle("/", http.FileServer(http.Dir(*staticDir)))
	http.Handle("/debug/", http.StripPrefix("/debug", http.FileServer(http.Dir(*debugDir))))
	http.Handle("/load", loadHTTPHandler{s})
	http.Handle("/edit", editHTTPHandler{s})
	http.Handle("/fork", forkHTTPHandler{s})
	http.Handle("/sync", syncHTTPHandler{s})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Serving in %s\n", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

// -----

type siteResponse struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type loadResponse struct {
	Sites []siteResponse `json:"sites"`
}

type loadHTTPHandler struct {
	s *state
}

func (h loadHTTPHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.s.handleLoad(w)
}

func (s *state) handleLoad(w http.ResponseWriter) {
	s.writeDebug(map[string]interface{}{
		"Type":    "load",
		"Request": "",
	})
	defer s.syncDebug()
	log.Printf("load")
	s.Lock()
	numRequests := s.numLoadRequests
	s.numLoadRequests++
	s.Unlock()

	var resp loadResponse
	sites := s.siteInfos()
	resp.Sites = make([]siteResponse, len(sites))
	for i, site := range sites {
		resp.Sites[i] = siteResponse{ID: site.id, Content: string(site.text)}
	}
	bs, err := json.Marshal(resp)
	if err != nil {
		log.Printf("Error marshaling load response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "load error: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(bs)
	s.writeDebug(map[string]interface{}{
		"Type":    "loadStep",
		"ReqIdx":  numRequests,
		"StepIdx": 0,
		"Sites":   s.debugSites(),
	})
}

// -----

// editRequest carries the editor's whole buffer after a keystroke, not a
// single op: the server diffs it against the site's last-known text and
// replays the result onto the replica one run at a time.
type editRequest struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type editHTTPHandler struct {
	s *state
}

func (h editHTTPHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	parser := json.NewDecoder(req.Body)
	editReq := &editRequest{}
	if err := parser.Decode(editReq); err != nil {
		log.Printf("Error parsing body in /edit: %v", err)
		return
	}
	h.s.handleEdit(w, editReq)
}

func (s *state) handleEdit(w http.ResponseWriter, req *editRequest) {
	s.writeDebug(map[string]interface{}{
		"Type":    "edit",
		"Request": req,
	})
	defer s.syncDebug()

	id := req.ID
	val, ok := s.sitemap.Load(id)
	if !ok {
		log.Printf("Unknown site ID: %s", id)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "edit error: %q not found", id)
		return
	}
	site := val.(siteInfo)
	site.mu.Lock()
	defer site.mu.Unlock()

	s.Lock()
	numRequests := s.numEditRequests
	s.numEditRequests++
	s.Unlock()

	oldText := string(site.text)
	edits, err := textdiff.ApplyToReplica(site.replica, oldText, req.Content)
	if err != nil {
		log.Printf("Error diffing edit for %s: %v", id, err)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "edit error: %v", err)
		return
	}
	site.text = []rune(req.Content)
	site.log = append(site.log, edits...)
	s.sitemap.Store(id, site)

	for j, edit := range edits {
		log.Printf("%s: operation = %v", id, edit.Kind)
		s.writeDebug(map[string]interface{}{
			"Type":     "editStep",
			"ReqIdx":   numRequests,
			"StepIdx":  j,
			"Sites":    s.debugSites(),
			"LocalIdx": site.order,
		})
	}

	content := string(site.text)
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, content)
	log.Printf("%s: value     = %s", id, content)
}

// -----

type forkRequest struct {
	LocalID string `json:"local"`
}

type forkHTTPHandler struct {
	s *state
}

func (h forkHTTPHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	parser := json.NewDecoder(req.Body)
	forkReq := &forkRequest{}
	if err := parser.Decode(forkReq); err != nil {
		log.Printf("Error parsing body in /fork: %v", err)
		return
	}
	h.s.handleFork(w, forkReq)
}

func (s *state) handleFork(w http.ResponseWriter, req *forkRequest) {
	s.writeDebug(map[string]interface{}{
		"Type":    "fork",
		"Request": req,
	})
	defer s.syncDebug()

	id := req.LocalID
	val, ok := s.sitemap.Load(id)
	if !ok {
		log.Printf("Unknown site ID: %s", id)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "fork error: %q not found", id)
		return
	}
	site := val.(siteInfo)
	site.mu.Lock()
	defer site.mu.Unlock()

	s.Lock()
	order := s.maplen
	numRequests := s.numForkRequests
	s.numForkRequests++
	s.maplen++
	s.Unlock()

	remoteReplica := site.replica.Clone()
	remoteID := remoteReplica.ID().String()
	remoteText := append([]rune(nil), site.text...)
	remoteLog := append([]runtree.CrdtEdit(nil), site.log...)
	remote := siteInfo{
		id:         remoteID,
		replica:    remoteReplica,
		text:       remoteText,
		log:        remoteLog,
		mu:         &sync.Mutex{},
		order:      order,
		mergedUpTo: make(map[string]int),
	}
	s.sitemap.Store(remoteID, remote)

	log.Printf("%s: fork      = %s", id, remoteID)
	resp := siteResponse{ID: remoteID, Content: string(remoteText)}
	bs, err := json.Marshal(resp)
	if err != nil {
		log.Printf("Error marshaling fork response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "fork error: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(bs)
	s.writeDebug(map[string]interface{}{
		"Type":      "forkStep",
		"ReqIdx":    numRequests,
		"StepIdx":   0,
		"Sites":     s.debugSites(),
		"LocalIdx":  site.order,
		"RemoteIdx": order,
	})
}

// -----

type syncRequest struct {
	LocalID   string   `json:"id"`
	RemoteIDs []string `json:"mergeIds"`
}

type syncHTTPHandler struct {
	s *state
}

func (h syncHTTPHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	parser := json.NewDecoder(req.Body)
	syncReq := &syncRequest{}
	if err := parser.Decode(syncReq); err != nil {
		log.Printf("Error parsing body in /sync: %v", err)
		return
	}
	h.s.handleSync(w, syncReq)
}

func (s *state) handleSync(w http.ResponseWriter, req *syncRequest) {
	s.writeDebug(map[string]interface{}{
		"Type":    "sync",
		"Request": req,
	})
	defer s.syncDebug()

	s.Lock()
	numRequests := s.numSyncRequests
	s.numSyncRequests++
	s.Unlock()

	localVal, ok := s.sitemap.Load(req.LocalID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "unknown ID %q", req.LocalID)
		return
	}
	local := localVal.(siteInfo)

	for i, remoteID := range req.RemoteIDs {
		remoteVal, ok := s.sitemap.Load(remoteID)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, "unknown remote site ID: %q", remoteID)
			return
		}
		remote := remoteVal.(siteInfo)

		lockAll(local, remote)
		mergeSite(&local, &remote)
		unlockAll(local, remote)
		s.sitemap.Store(local.id, local)

		log.Printf("%s: merge     = %s", req.LocalID, remoteID)
		s.writeDebug(map[string]interface{}{
			"Type":      "syncStep",
			"ReqIdx":    numRequests,
			"StepIdx":   i,
			"Sites":     s.debugSites(),
			"LocalIdx":  local.order,
			"RemoteIdx": remote.order,
		})
	}
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, string(local.text))
}

// mergeSite folds every edit in remote's log that local hasn't yet absorbed
// into local, applying each successfully-merged edit to local's own text
// buffer and log (so a later sync from a third site can gossip it onward).
// An edit that can't resolve yet (its anchor depends on an edit still in
// transit from a fourth site) is left for the next /sync call to retry.
func mergeSite(local, remote *siteInfo) {
	start := local.mergedUpTo[remote.id]
	next := start
	for i := start; i < len(remote.log); i++ {
		edit := remote.log[i]
		textEdit, ok := local.replica.Merge(edit)
		if !ok {
			break
		}
		applyTextEdit(local, textEdit)
		local.log = append(local.log, edit)
		next = i + 1
	}
	local.mergedUpTo[remote.id] = next
}

func applyTextEdit(site *siteInfo, edit *runtree.TextEdit) {
	switch edit.Kind {
	case runtree.EditInsertion:
		// The merged run's actual characters aren't known to this index
		// (it tracks structure, not text); the demo has no out-of-band
		// channel for them, so it pads with a placeholder rune. A real
		// client pairs CrdtEdit with the typed text itself.
		placeholder := make([]rune, edit.Len)
		for i := range placeholder {
			placeholder[i] = '�'
		}
		site.text = insertRunes(site.text, edit.Offset, placeholder)
	case runtree.EditDeletion:
		for _, r := range edit.Ranges {
			site.text = deleteRuneRange(site.text, r.Offset, r.Offset+r.Len)
		}
	}
}

func insertRunes(text []rune, at int64, chs []rune) []rune {
	out := make([]rune, 0, int64(len(text))+int64(len(chs)))
	out = append(out, text[:at]...)
	out = append(out, chs...)
	out = append(out, text[at:]...)
	return out
}

func deleteRuneRange(text []rune, start, end int64) []rune {
	out := make([]rune, 0, int64(len(text))-(end-start))
	out = append(out, text[:start]...)
	out = append(out, text[end:]...)
	return out
}

// -----

// Lock mutexes in ascending order of site ID, to avoid deadlocking when two
// sync requests name the same pair of sites in opposite order.
func lockAll(sites ...siteInfo) {
	sortSitesByID(sites)
	for _, site := range sites {
		site.mu.Lock()
	}
}

// Unlock mutexes in descending order.
func unlockAll(sites ...siteInfo) {
	sortSitesByID(sites)
	for i := len(sites) - 1; i >= 0; i-- {
		sites[i].mu.Unlock()
	}
}

func sortSitesByID(sites []siteInfo) {
	sort.Slice(sites, func(i, j int) bool { return sites[i].id < sites[j].id })
}

// -----

func (s *state) debugSites() []siteInfo {
	if !s.isDebug() {
		return nil
	}
	return s.siteInfos()
}

func (s *state) isDebug() bool {
	return s.debugMsgs != nil
}

func (s *state) writeDebug(x interface{}) {
	if s.isDebug() {
		s.debugMsgs <- debugMessage{
			msgType: writeDebug,
			payload: x,
		}
	}
}

func (s *state) syncDebug() {
	if s.isDebug() {
		s.debugMsgs <- debugMessage{msgType: syncDebug}
	}
}

func runDebug() chan<- debugMessage {
	f := createDebug()
	if f == nil {
		return nil
	}
	ch := make(chan debugMessage, 10)
	go func() {
		for msg := range ch {
			if f == nil {
				continue
			}
			switch msg.msgType {
			case writeDebug:
				if bs, err := json.Marshal(msg.payload); err != nil {
					log.Printf("Error while writing to debug file: %v", err)
				} else {
					f.Write(bs)
					f.WriteString("\n")
				}
			case syncDebug:
				f.Sync()
			}
		}
		f.Close()
	}()
	return ch
}

func createDebug() *os.File {
	if !*debug && *debugFilename == "" {
		return nil
	}
	if *debugFilename == "" {
		datetime := time.Now().Format("2006-01-02T15:04:05")
		*debugFilename = fmt.Sprintf("log_%s.jsonl", datetime)
	}
	debugFile, err := os.Create(*debugFilename)
	if err != nil {
		log.Printf("Error opening debug file: %v", err)
		return nil
	}
	return debugFile
}
