package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/amoylab/sessionkv/internal/provider"
	"github.com/amoylab/sessionkv/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sessionContextKey = "sessionkv.session"

// persistTimeout bounds the write-back after the handler. The write-back
// outlives the request so a client hanging up does not leave the lock held.
const persistTimeout = 10 * time.Second

var errLockWait = errors.New("gave up waiting for the session lock")

// State is the session of the current request
type State struct {
	ID   string
	Data *provider.StoreData

	lockID    session.LockID
	exclusive bool
	isNew     bool
	abandoned bool
}

// Items returns the session items
func (st *State) Items() *session.Items {
	return st.Data.Items
}

// Abandon removes the session once the request completes
func (st *State) Abandon() {
	st.abandoned = true
}

// SessionFrom returns the session attached by the session middleware
func SessionFrom(c *gin.Context) *State {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	st, _ := v.(*State)
	return st
}

func readOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// sessionMiddleware plays the framework role around a handler: it reads the
// session (locking it for writes), waits out other holders, forces release
// of locks older than the execution timeout and persists the state after
// the handler ran.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	sc := s.cfg.Session
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := c.Cookie(sc.CookieName)
		if err != nil || id == "" {
			id = uuid.NewString()
		}
		st := &State{ID: id, exclusive: !readOnly(c.Request.Method)}

		res, err := s.acquire(ctx, st)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, errLockWait) || errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusServiceUnavailable
			}
			s.logger.Warn("failed to load session", zap.String("id", id), zap.Error(err))
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}
		if res.Data == nil {
			st.isNew = true
			st.Data = s.sessions.CreateNewStoreData(sc.Timeout)
		} else {
			st.Data = res.Data
		}
		st.lockID = res.LockID
		if st.isNew {
			c.SetCookie(sc.CookieName, id, 0, "/", "", sc.CookieSecure, true)
		}

		c.Set(sessionContextKey, st)
		c.Next()

		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		s.persist(pctx, st)
	}
}

// acquire reads the session, polling while another request holds it
func (s *Server) acquire(ctx context.Context, st *State) (*provider.ItemResult, error) {
	sc := s.cfg.Session
	deadline := time.Now().Add(sc.ExecutionTimeout)
	for {
		var (
			res *provider.ItemResult
			err error
		)
		if st.exclusive {
			res, err = s.sessions.GetItemExclusive(ctx, st.ID)
		} else {
			res, err = s.sessions.GetItem(ctx, st.ID)
		}
		if err != nil {
			return nil, err
		}
		if !res.Locked {
			return res, nil
		}

		if res.LockAge > sc.ExecutionTimeout {
			s.logger.Info("releasing stale session lock",
				zap.String("id", st.ID),
				zap.Duration("lock_age", res.LockAge))
			if err := s.sessions.ReleaseItemExclusive(ctx, st.ID, res.LockID); err != nil {
				return nil, err
			}
			continue
		}
		if time.Now().After(deadline) {
			return nil, errLockWait
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sc.LockPollInterval):
		}
	}
}

// persist writes the session back after the handler
func (s *Server) persist(ctx context.Context, st *State) {
	var err error
	switch {
	case st.abandoned:
		if !st.isNew {
			err = s.sessions.RemoveItem(ctx, st.ID, st.lockID)
		}
	case !st.exclusive:
		if !st.isNew {
			err = s.sessions.ResetItemTimeout(ctx, st.ID)
		}
	case st.isNew || st.Data.Items.Dirty():
		err = s.sessions.SetAndReleaseItemExclusive(ctx, st.ID, st.Data, st.lockID, st.isNew)
	default:
		if err = s.sessions.ReleaseItemExclusive(ctx, st.ID, st.lockID); err == nil {
			err = s.sessions.ResetItemTimeout(ctx, st.ID)
		}
	}
	if err != nil {
		s.logger.Error("failed to persist session", zap.String("id", st.ID), zap.Error(err))
	}
}
