package services

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"ima-agent/internal/app/models"
	"ima-agent/internal/pkg/code"
	"ima-agent/pkg/util"
)

const (
	tokenSkew       = 5 * time.Minute
	dumpSaveTimeout = 5 * time.Second
	defaultDumpSize = 1 << 20
)

var ErrEmptyQuestion = errors.New("question is empty")

// CredentialSource 提供凭证快照与互斥刷新
type CredentialSource interface {
	Get() models.Credentials
	Refresh(ctx context.Context, stale models.Credentials) (models.Credentials, error)
}

// Backoff 第 n 次重试前等待 Base*2^(n-1)，不超过 Max
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

func (b Backoff) Delay(n int, rng *rand.Rand) time.Duration {
	d := b.Base
	for i := 1; i < n && (b.Max <= 0 || d < b.Max); i++ {
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if b.Jitter && rng != nil && d > 1 {
		half := d / 2
		d = half + time.Duration(rng.Int63n(int64(d-half)+1))
	}
	return d
}

type Options struct {
	Defaults       models.AskParams // 知识库与类型编码的默认值
	MaxAttempts    int
	Timeout        time.Duration
	AttemptTimeout time.Duration
	Backoff        Backoff
	Seed           int64
	EagerRefresh   bool

	Sessions      SessionInitializer
	Diagnostics   DiagnosticsSink
	DumpMaxBytes  int
	DumpOnSuccess bool
}

// Client 把一次提问编排为有限次尝试：网络与流错误退避重试，认证失败最多刷新一次
type Client struct {
	store     CredentialSource
	transport Transport
	opts      Options

	rngMu sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewClient(store CredentialSource, transport Transport, opts Options) *Client {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.DumpMaxBytes <= 0 {
		opts.DumpMaxBytes = defaultDumpSize
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Client{
		store:     store,
		transport: transport,
		opts:      opts,
		rng:       rand.New(rand.NewSource(seed)),
		sleep:     sleepContext,
		now:       time.Now,
	}
}

func (c *Client) Ask(ctx context.Context, params models.AskParams) (*models.Result, error) {
	res, _, err := c.AskWithState(ctx, params)
	return res, err
}

// AskWithState 与 Ask 相同，同时返回本次提问结束时的尝试状态
func (c *Client) AskWithState(ctx context.Context, params models.AskParams) (*models.Result, *models.AttemptState, error) {
	params = c.withDefaults(params)
	if strings.TrimSpace(params.Question) == "" {
		return nil, nil, ErrEmptyQuestion
	}

	st := &models.AttemptState{TraceID: uuid.New().String()[:8], State: models.StateAttempting}
	logger := log.WithField("trace_id", st.TraceID)
	logger.Infof("ask: %s", util.Preview(params.Question, 50))

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	c.eagerRefresh(ctx, st, logger)
	ownSession := params.SessionID != ""

	for {
		st.Attempt++
		creds := c.store.Get()
		alog := logger.WithFields(log.Fields{"attempt": st.Attempt, "version": creds.Version})

		res, err := c.attempt(ctx, st, &params, creds, alog)
		if err == nil {
			st.State = models.StateSucceeded
			st.LastErr = nil
			alog.Infof("answer received: %d chars, %d references", len(res.Answer), len(res.References))
			return res, st, nil
		}
		st.LastErr = err
		if ctx.Err() != nil {
			return c.fail(st, code.FromContext(ctx, err), alog)
		}

		switch {
		case code.KindOf(err) == code.ErrAuthentication:
			if st.Refreshed || st.EagerRefreshed {
				return c.fail(st, terminal(code.ErrAuthentication, err), alog)
			}
			st.Refreshed = true
			st.State = models.StateRefreshingThenRetrying
			alog.Warnf("authentication failed, refreshing credentials: %v", err)
			if _, rerr := c.store.Refresh(ctx, creds); rerr != nil {
				if ctx.Err() != nil {
					return c.fail(st, code.FromContext(ctx, rerr), alog)
				}
				return c.fail(st, code.New(code.ErrAuthentication, rerr), alog)
			}
			// 旧会话绑定失效的凭证，刷新后重新初始化
			if !ownSession {
				params.SessionID = ""
			}
		case code.Retryable(err):
			n := st.NetworkAttempts()
			if n >= c.opts.MaxAttempts {
				e := &code.Error{Kind: code.ErrRetriesExhausted, Err: err, Artifact: code.ArtifactOf(err)}
				return c.fail(st, e, alog)
			}
			st.State = models.StateRetrying
			d := c.delay(n)
			st.Delays = append(st.Delays, d)
			alog.Warnf("attempt failed, retrying in %s: %v", d, err)
			if err := c.sleep(ctx, d); err != nil {
				return c.fail(st, code.FromContext(ctx, st.LastErr), alog)
			}
		default:
			return c.fail(st, terminal(code.KindOf(err), err), alog)
		}
	}
}

func (c *Client) attempt(ctx context.Context, st *models.AttemptState, params *models.AskParams, creds models.Credentials, logger *log.Entry) (*models.Result, error) {
	actx := ctx
	if c.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, c.opts.AttemptTimeout)
		defer cancel()
	}

	// 会话在同一次提问的重试间复用，凭证刷新后重建
	if params.SessionID == "" && c.opts.Sessions != nil {
		id, err := c.opts.Sessions.InitSession(actx, *params, creds)
		if err != nil {
			return nil, attemptError(ctx, err)
		}
		params.SessionID = id
		logger.Debugf("session initialized: %s", id)
	}

	started := c.now()
	body, err := c.transport.Send(actx, *params, creds)
	if err != nil {
		return nil, attemptError(ctx, err)
	}
	defer body.Close()

	var tee *capture
	var src io.Reader = body
	if c.opts.Diagnostics != nil {
		tee = newCapture(c.opts.DumpMaxBytes)
		src = io.TeeReader(body, tee)
	}
	dec := NewDecoder(src)
	res, err := Assemble(dec)
	if err != nil {
		err = attemptError(ctx, err)
	}

	if tee != nil && (isStreamError(err) || (err == nil && c.opts.DumpOnSuccess)) {
		ref := c.dump(ctx, st, params.Question, dec.Stats(), tee, c.now().Sub(started), err, logger)
		var e *code.Error
		if ref != "" && err != nil && errors.As(err, &e) {
			e.Artifact = ref
		}
	}
	if err == nil {
		stats := dec.Stats()
		logger.Debugf("stream decoded: %d records, %d events, %d skipped", stats.Records, stats.Events, stats.Skipped)
	}
	return res, err
}

func (c *Client) dump(ctx context.Context, st *models.AttemptState, question string, stats DecodeStats, tee *capture, elapsed time.Duration, streamErr error, logger *log.Entry) string {
	rec := &models.RawDump{
		TraceID:        st.TraceID,
		Attempt:        st.Attempt,
		Question:       util.Preview(question, 200),
		Records:        stats.Records,
		Events:         stats.Events,
		Skipped:        stats.Skipped,
		ElapsedSeconds: elapsed.Seconds(),
		ResponseBytes:  tee.total,
		Truncated:      tee.truncated,
		Body:           tee.buf,
		CreatedAt:      c.now(),
	}
	if streamErr != nil {
		rec.StreamError = util.Preview(streamErr.Error(), 1000)
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dumpSaveTimeout)
	defer cancel()
	ref, err := c.opts.Diagnostics.Save(sctx, rec)
	if err != nil {
		logger.Warnf("save raw response failed: %v", err)
		return ""
	}
	logger.Infof("raw response saved: %s", ref)
	return ref
}

// eagerRefresh 在 token 临近过期时主动刷新，占用本次提问唯一的刷新机会
func (c *Client) eagerRefresh(ctx context.Context, st *models.AttemptState, logger *log.Entry) {
	if !c.opts.EagerRefresh {
		return
	}
	creds := c.store.Get()
	if !creds.CanRefresh() || !creds.Expired(c.now(), tokenSkew) {
		return
	}
	st.EagerRefreshed = true
	if _, err := c.store.Refresh(ctx, creds); err != nil {
		logger.Warnf("proactive token refresh failed, continuing with current credentials: %v", err)
	}
}

func (c *Client) withDefaults(p models.AskParams) models.AskParams {
	d := c.opts.Defaults
	if p.KnowledgeBaseID == "" {
		p.KnowledgeBaseID = d.KnowledgeBaseID
	}
	if p.RobotType == 0 {
		p.RobotType = d.RobotType
	}
	if p.SceneType == 0 {
		p.SceneType = d.SceneType
	}
	if p.ModelType == 0 {
		p.ModelType = d.ModelType
	}
	return p
}

func (c *Client) delay(n int) time.Duration {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.opts.Backoff.Delay(n, c.rng)
}

func (c *Client) fail(st *models.AttemptState, e *code.Error, logger *log.Entry) (*models.Result, *models.AttemptState, error) {
	e.Attempts = st.Attempt
	st.State = models.StateFailedTerminal
	st.LastErr = e
	logger.Errorf("ask failed after %d attempts: %v", st.Attempt, e)
	return nil, st, e
}

// attemptError 把未分类的错误（包括单次尝试超时）归为网络错误，总时限到期由调用方处理
func attemptError(ctx context.Context, err error) error {
	if code.KindOf(err) != nil || ctx.Err() != nil {
		return err
	}
	return code.New(code.ErrNetwork, err)
}

// terminal 返回带分类的错误副本，未分类的错误按网络错误处理
func terminal(kind, err error) *code.Error {
	var e *code.Error
	if errors.As(err, &e) && e.Kind == kind {
		cp := *e
		return &cp
	}
	if kind == nil {
		kind = code.ErrNetwork
	}
	return code.New(kind, err)
}

func isStreamError(err error) bool {
	switch code.KindOf(err) {
	case code.ErrIncompleteStream, code.ErrMalformedStream:
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
