package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"smartpdf-web/internal/gateway"
	"smartpdf-web/internal/pkg/logger"
)

const logModule = "SessionStore"

// errUnchanged aborts a mutation that would commit nothing.
var errUnchanged = errors.New("state unchanged")

// Reason names the mutation that produced a Change.
type Reason string

const (
	ReasonFilesSelected  Reason = "files_selected"
	ReasonFilesCleared   Reason = "files_cleared"
	ReasonUploadStarted  Reason = "upload_started"
	ReasonSessionCreated Reason = "session_created"
	ReasonUploadFailed   Reason = "upload_failed"
	ReasonQuerySent      Reason = "query_sent"
	ReasonQueryAnswered  Reason = "query_answered"
	ReasonQueryFailed    Reason = "query_failed"
	ReasonEndStarted     Reason = "end_started"
	ReasonSessionEnded   Reason = "session_ended"
	ReasonEndFailed      Reason = "end_failed"
	ReasonAbandoned      Reason = "abandoned"
	ReasonErrorCleared   Reason = "error_cleared"
)

// Change is emitted after every committed mutation.
type Change struct {
	Reason   Reason
	Snapshot Snapshot
}

// Notifier observes committed changes. It is called outside the Store lock;
// Snapshot.Version orders changes that race each other.
type Notifier interface {
	Notify(change Change)
}

type NotifierFunc func(change Change)

func (f NotifierFunc) Notify(change Change) { f(change) }

type Options struct {
	// Zero timeouts leave the call bounded only by the caller's context.
	UploadTimeout     time.Duration
	ChatTimeout       time.Duration
	EndSessionTimeout time.Duration

	Notifier Notifier
	Logger   logger.ILogger
	Now      func() time.Time
}

type state struct {
	version      uint64
	epoch        uint64
	phase        Phase
	sessionID    string
	pendingFiles []gateway.Document
	lastError    string
	isLoading    bool
	chatPending  bool
	transcript   []Message
}

// Store is the single source of truth for one client's session lifecycle.
// All writes go through mutate; the lock is never held across a gateway call.
type Store struct {
	mu   sync.Mutex
	st   state
	gw   gateway.Gateway
	opts Options
}

func NewStore(gw gateway.Gateway, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{gw: gw, opts: opts}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.snapshot()
}

// SelectFiles replaces the pending selection.
func (s *Store) SelectFiles(files []gateway.Document) (Snapshot, error) {
	return s.mutate(ReasonFilesSelected, func(st *state) error {
		if st.isLoading {
			return ErrBusy
		}
		if st.phase == PhaseActive {
			return ErrSessionActive
		}
		if len(files) == 0 {
			return ErrNoFilesSelected
		}
		if err := st.transition(PhaseSelectingFiles); err != nil {
			return err
		}
		st.pendingFiles = cloneDocuments(files)
		st.lastError = ""
		return nil
	})
}

// ClearFiles drops the pending selection and returns to Idle.
func (s *Store) ClearFiles() (Snapshot, error) {
	return s.mutate(ReasonFilesCleared, func(st *state) error {
		if st.isLoading {
			return ErrBusy
		}
		if st.phase != PhaseSelectingFiles {
			return ErrNoFilesSelected
		}
		if err := st.transition(PhaseIdle); err != nil {
			return err
		}
		st.pendingFiles = nil
		return nil
	})
}

// Upload submits the pending selection and, on success, binds the returned
// session id. A failure keeps the selection for retry. The returned snapshot
// is the committed state after the call, also when err is a gateway error.
func (s *Store) Upload(ctx context.Context) (Snapshot, error) {
	var (
		docs  []gateway.Document
		epoch uint64
	)
	_, err := s.mutate(ReasonUploadStarted, func(st *state) error {
		if st.isLoading {
			return ErrBusy
		}
		switch st.phase {
		case PhaseActive, PhaseEndingSession:
			return ErrSessionActive
		case PhaseIdle:
			return ErrNoFilesSelected
		}
		if len(st.pendingFiles) == 0 {
			return ErrNoFilesSelected
		}
		if err := st.transition(PhaseUploading); err != nil {
			return err
		}
		st.isLoading = true
		st.lastError = ""
		docs = cloneDocuments(st.pendingFiles)
		epoch = st.epoch
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	callCtx, cancel := withTimeout(ctx, s.opts.UploadTimeout)
	res, callErr := s.gw.UploadDocuments(callCtx, docs)
	cancel()

	if callErr != nil {
		gwErr := gateway.Classify(gateway.OpUpload, callErr)
		snap, err := s.mutate(ReasonUploadFailed, func(st *state) error {
			if st.epoch != epoch || st.phase != PhaseUploading {
				return ErrSuperseded
			}
			if err := st.transition(PhaseSelectingFiles); err != nil {
				return err
			}
			st.isLoading = false
			st.lastError = gwErr.Error()
			return nil
		})
		if err != nil {
			return Snapshot{}, err
		}
		s.opts.Logger.Warn(logModule, "Upload failed", map[string]interface{}{
			"error": gwErr.Error(),
			"kind":  gwErr.Kind.String(),
		})
		return snap, gwErr
	}

	snap, err := s.mutate(ReasonSessionCreated, func(st *state) error {
		if st.epoch != epoch || st.phase != PhaseUploading {
			return ErrSuperseded
		}
		if err := st.transition(PhaseActive); err != nil {
			return err
		}
		st.epoch++
		st.sessionID = res.SessionID
		st.pendingFiles = nil
		st.transcript = nil
		st.isLoading = false
		st.lastError = ""
		return nil
	})
	if errors.Is(err, ErrSuperseded) {
		// Nobody owns this backend session any more.
		s.opts.Logger.Warn(logModule, "Upload finished after reset, terminating orphan", map[string]interface{}{
			"session_id": res.SessionID,
		})
		s.gw.TerminateDetached(res.SessionID)
		return Snapshot{}, err
	}
	if err != nil {
		return Snapshot{}, err
	}

	s.opts.Logger.Info(logModule, "Session active", map[string]interface{}{"session_id": res.SessionID})
	return snap, nil
}

// Chat appends the query to the transcript, waits for the answer and appends
// it. Only one query may be outstanding. On failure the user turn is kept and
// marked Failed.
func (s *Store) Chat(ctx context.Context, query string) (Message, error) {
	query = strings.TrimSpace(query)

	var (
		sessionID string
		epoch     uint64
		userMsgID string
	)
	_, err := s.mutate(ReasonQuerySent, func(st *state) error {
		if st.phase != PhaseActive {
			return ErrNoActiveSession
		}
		if st.chatPending {
			return ErrChatPending
		}
		if query == "" {
			return ErrEmptyQuery
		}
		msg := newUserMessage(query, s.opts.Now())
		st.transcript = append(st.transcript, msg)
		st.chatPending = true
		st.lastError = ""
		sessionID = st.sessionID
		epoch = st.epoch
		userMsgID = msg.ID
		return nil
	})
	if err != nil {
		return Message{}, err
	}

	callCtx, cancel := withTimeout(ctx, s.opts.ChatTimeout)
	res, callErr := s.gw.SubmitQuery(callCtx, sessionID, query)
	cancel()

	if callErr != nil {
		gwErr := gateway.Classify(gateway.OpChat, callErr)
		_, err := s.mutate(ReasonQueryFailed, func(st *state) error {
			if st.epoch != epoch {
				return ErrSuperseded
			}
			st.chatPending = false
			st.lastError = gwErr.Error()
			for i := range st.transcript {
				if st.transcript[i].ID == userMsgID {
					st.transcript[i].Failed = true
				}
			}
			return nil
		})
		if err != nil {
			return Message{}, err
		}
		s.opts.Logger.Warn(logModule, "Query failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      gwErr.Error(),
		})
		return Message{}, gwErr
	}

	var answer Message
	_, err = s.mutate(ReasonQueryAnswered, func(st *state) error {
		if st.epoch != epoch {
			return ErrSuperseded
		}
		answer = newAssistantMessage(res, s.opts.Now())
		st.transcript = append(st.transcript, answer)
		st.chatPending = false
		st.lastError = ""
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	return answer, nil
}

// EndSession terminates the backend session. On failure the session is
// presumed still live and the Store stays Active.
func (s *Store) EndSession(ctx context.Context) (Snapshot, error) {
	var (
		sessionID string
		epoch     uint64
	)
	_, err := s.mutate(ReasonEndStarted, func(st *state) error {
		if st.isLoading {
			return ErrBusy
		}
		if st.phase != PhaseActive {
			return ErrNoActiveSession
		}
		if err := st.transition(PhaseEndingSession); err != nil {
			return err
		}
		st.isLoading = true
		st.lastError = ""
		sessionID = st.sessionID
		epoch = st.epoch
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	callCtx, cancel := withTimeout(ctx, s.opts.EndSessionTimeout)
	_, callErr := s.gw.TerminateSession(callCtx, sessionID)
	cancel()

	if callErr != nil {
		gwErr := gateway.Classify(gateway.OpTerminate, callErr)
		snap, err := s.mutate(ReasonEndFailed, func(st *state) error {
			if st.epoch != epoch || st.phase != PhaseEndingSession {
				return ErrSuperseded
			}
			if err := st.transition(PhaseActive); err != nil {
				return err
			}
			st.isLoading = false
			st.lastError = gwErr.Error()
			return nil
		})
		if err != nil {
			return Snapshot{}, err
		}
		s.opts.Logger.Warn(logModule, "End session failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      gwErr.Error(),
		})
		return snap, gwErr
	}

	snap, err := s.mutate(ReasonSessionEnded, func(st *state) error {
		if st.epoch != epoch || st.phase != PhaseEndingSession {
			return ErrSuperseded
		}
		if err := st.transition(PhaseIdle); err != nil {
			return err
		}
		st.reset()
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	s.opts.Logger.Info(logModule, "Session ended", map[string]interface{}{"session_id": sessionID})
	return snap, nil
}

// Abandon forces the Store back to Idle without any network call and returns
// the session id that was live, if any. It is the unload path: the caller
// decides whether to terminate the backend session.
func (s *Store) Abandon() (string, bool) {
	var sessionID string
	_, err := s.mutate(ReasonAbandoned, func(st *state) error {
		if st.pristine() {
			return errUnchanged
		}
		sessionID = st.sessionID
		st.phase = PhaseIdle
		st.reset()
		return nil
	})
	if err != nil {
		return "", false
	}
	return sessionID, sessionID != ""
}

// ClearError drops LastError without touching anything else.
func (s *Store) ClearError() Snapshot {
	snap, err := s.mutate(ReasonErrorCleared, func(st *state) error {
		if st.lastError == "" {
			return errUnchanged
		}
		st.lastError = ""
		return nil
	})
	if err != nil {
		return s.Snapshot()
	}
	return snap
}

// mutate is the single write path. fn runs under the lock; when it returns
// nil the new state is committed, versioned and announced.
func (s *Store) mutate(reason Reason, fn func(st *state) error) (Snapshot, error) {
	s.mu.Lock()
	if err := fn(&s.st); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	s.st.version++
	snap := s.st.snapshot()
	s.mu.Unlock()

	if s.opts.Notifier != nil {
		s.opts.Notifier.Notify(Change{Reason: reason, Snapshot: snap})
	}
	return snap, nil
}

func (st *state) transition(to Phase) error {
	if !CanTransition(st.phase, to) {
		return illegalTransition(st.phase, to)
	}
	st.phase = to
	return nil
}

// pristine reports an Idle store with nothing selected, bound or in flight.
func (st *state) pristine() bool {
	return st.phase == PhaseIdle &&
		st.sessionID == "" &&
		!st.isLoading &&
		!st.chatPending &&
		len(st.pendingFiles) == 0 &&
		len(st.transcript) == 0 &&
		st.lastError == ""
}

// reset clears everything bound to a session. Phase is set by the caller.
func (st *state) reset() {
	st.epoch++
	st.sessionID = ""
	st.pendingFiles = nil
	st.transcript = nil
	st.isLoading = false
	st.chatPending = false
	st.lastError = ""
}

func (st *state) snapshot() Snapshot {
	files := make([]FileInfo, len(st.pendingFiles))
	for i, f := range st.pendingFiles {
		files[i] = FileInfo{Name: f.Name, Size: len(f.Data)}
	}

	transcript := make([]Message, len(st.transcript))
	copy(transcript, st.transcript)

	return Snapshot{
		Version:      st.version,
		Phase:        st.phase,
		SessionID:    st.sessionID,
		PendingFiles: files,
		LastError:    st.lastError,
		IsLoading:    st.isLoading,
		ChatPending:  st.chatPending,
		Transcript:   transcript,
	}
}

func cloneDocuments(docs []gateway.Document) []gateway.Document {
	out := make([]gateway.Document, len(docs))
	copy(out, docs)
	return out
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
