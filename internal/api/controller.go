package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Europeia/eurocore/internal/apierr"
	"github.com/Europeia/eurocore/internal/auth"
	"github.com/Europeia/eurocore/internal/factbook"
	"github.com/Europeia/eurocore/internal/nation"
	"github.com/Europeia/eurocore/internal/ratelimit"
	"github.com/Europeia/eurocore/internal/store"
	"github.com/Europeia/eurocore/internal/worker"
)

// decodeBody reads the full request body, confirms requiredKeys are present
// with a reflection-free jsonparser pass, then decodes into dst.
func decodeBody(r *http.Request, dst any, requiredKeys ...string) error {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return apierr.ErrInvalidNation
	}
	if err := requireJSONKeys(raw, requiredKeys...); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apierr.ErrInvalidNation
	}
	return nil
}

// Controller persists the job envelope via the store and hands an
// intermediate record to the owning worker.
//
// dispatchNations and rmbpostNations are separate credential caches, one
// per `dispatch_nations`/`rmbpost_nations` configuration string — a nation
// authorized for one job class need not be authorized for the other.
type Controller struct {
	db              *store.DB
	dispatchNations *nation.Cache
	rmbpostNations  *nation.Cache
	limiter         *ratelimit.Limiter
	dispatch        *worker.DispatchWorker
	rmbpost         *worker.RmbPostWorker
	telegram        *worker.TelegramWorker
	log             *zap.Logger
}

// NewController assembles the facade over its collaborators.
func NewController(db *store.DB, dispatchNations, rmbpostNations *nation.Cache, limiter *ratelimit.Limiter, dispatch *worker.DispatchWorker, rmbpost *worker.RmbPostWorker, telegram *worker.TelegramWorker, log *zap.Logger) *Controller {
	return &Controller{
		db:              db,
		dispatchNations: dispatchNations,
		rmbpostNations:  rmbpostNations,
		limiter:         limiter,
		dispatch:        dispatch,
		rmbpost:         rmbpost,
		telegram:        telegram,
		log:             log,
	}
}

func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Metrics writes a Prometheus-style text exposition of the four rate-budget
// bucket depths, per-worker queue depths, and job terminal counters.
func (c *Controller) Metrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	stats := c.limiter.Stats(ctx)
	fmt.Fprintf(w, "# HELP eurocore_ratelimit_bucket_depth retained reservations in each rate-budget bucket\n")
	fmt.Fprintf(w, "# TYPE eurocore_ratelimit_bucket_depth gauge\n")
	fmt.Fprintf(w, "eurocore_ratelimit_bucket_depth{bucket=\"global\"} %d\n", stats.GlobalDepth)
	fmt.Fprintf(w, "eurocore_ratelimit_bucket_depth{bucket=\"telegram\"} %d\n", stats.TelegramDepth)
	fmt.Fprintf(w, "eurocore_ratelimit_bucket_depth{bucket=\"recruitment\"} %d\n", stats.RecruitmentDepth)
	fmt.Fprintf(w, "eurocore_ratelimit_restricted_nations %d\n", stats.RestrictedNations)

	fmt.Fprintf(w, "# HELP eurocore_worker_queue_depth pending jobs in each worker's queue\n")
	fmt.Fprintf(w, "# TYPE eurocore_worker_queue_depth gauge\n")
	fmt.Fprintf(w, "eurocore_worker_queue_depth{worker=\"dispatch\"} %d\n", c.dispatch.QueueDepth(ctx))
	fmt.Fprintf(w, "eurocore_worker_queue_depth{worker=\"rmbpost\"} %d\n", c.rmbpost.QueueDepth(ctx))
	tgDepths := c.telegram.QueueDepths(ctx)
	fmt.Fprintf(w, "eurocore_worker_queue_depth{worker=\"telegram\",kind=\"recruitment\"} %d\n", tgDepths.Recruitment)
	fmt.Fprintf(w, "eurocore_worker_queue_depth{worker=\"telegram\",kind=\"standard\"} %d\n", tgDepths.Standard)

	fmt.Fprintf(w, "# HELP eurocore_job_total terminal and in-flight job counts by class and status\n")
	fmt.Fprintf(w, "# TYPE eurocore_job_total gauge\n")
	if counts, err := c.db.DispatchJobStatusCounts(ctx); err != nil {
		c.log.Error("reading dispatch job status counts", zap.Error(err))
	} else {
		for status, count := range counts {
			fmt.Fprintf(w, "eurocore_job_total{class=\"dispatch\",status=%q} %d\n", status, count)
		}
	}
	if counts, err := c.db.RmbPostJobStatusCounts(ctx); err != nil {
		c.log.Error("reading rmbpost job status counts", zap.Error(err))
	} else {
		for status, count := range counts {
			fmt.Fprintf(w, "eurocore_job_total{class=\"rmbpost\",status=%q} %d\n", status, count)
		}
	}
}

// --- dispatches ---

type createDispatchRequest struct {
	Nation      string `json:"nation"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	Category    int16  `json:"category"`
	Subcategory int16  `json:"subcategory"`
}

func (c *Controller) CreateDispatch(w http.ResponseWriter, r *http.Request) {
	var req createDispatchRequest
	if err := decodeBody(r, &req, "nation", "title", "text"); err != nil {
		writeError(w, err)
		return
	}

	if err := requireNonEmpty(map[string]string{"nation": req.Nation, "title": req.Title, "text": req.Text}); err != nil {
		writeError(w, err)
		return
	}
	if _, err := factbook.Validate(req.Category, req.Subcategory); err != nil {
		writeError(w, apierr.ErrInvalidFactbookCategory)
		return
	}
	nationName := strings.ToLower(strings.TrimSpace(req.Nation))
	if _, err := c.dispatchNations.GetPassword(r.Context(), nationName); err != nil {
		writeError(w, apierr.ErrInvalidNation)
		return
	}

	payload := store.AddPayload{
		Nation:      nationName,
		Title:       req.Title,
		Text:        req.Text,
		Category:    req.Category,
		Subcategory: req.Subcategory,
	}
	job, err := c.db.InsertDispatchJob(r.Context(), store.DispatchAdd, payload)
	if err != nil {
		writeError(w, apierr.ErrInternal)
		return
	}

	author := auth.Subject(r.Context())
	c.dispatch.Enqueue(r.Context(), worker.IntermediateDispatch{
		JobID:       job.ID,
		Nation:      nationName,
		Author:      author,
		Action:      store.DispatchAdd,
		Title:       &req.Title,
		Text:        &req.Text,
		Category:    &req.Category,
		Subcategory: &req.Subcategory,
	})

	nationsHeader(w, "dispatch-nations", c.dispatchNations.ListNations(r.Context()))
	writeAccepted(w, r, "/queue/dispatches/"+strconv.FormatInt(job.ID, 10), job)
}

type editDispatchRequest struct {
	Nation      string `json:"nation"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	Category    int16  `json:"category"`
	Subcategory int16  `json:"subcategory"`
}

func (c *Controller) EditDispatch(w http.ResponseWriter, r *http.Request) {
	dispatchID, err := pathDispatchID(r)
	if err != nil {
		writeError(w, apierr.ErrDispatchNotFound)
		return
	}

	var req editDispatchRequest
	if err := decodeBody(r, &req, "nation", "title", "text"); err != nil {
		writeError(w, err)
		return
	}
	if _, err := factbook.Validate(req.Category, req.Subcategory); err != nil {
		writeError(w, apierr.ErrInvalidFactbookCategory)
		return
	}
	nationName := strings.ToLower(strings.TrimSpace(req.Nation))
	if _, err := c.dispatchNations.GetPassword(r.Context(), nationName); err != nil {
		writeError(w, apierr.ErrInvalidNation)
		return
	}

	payload := store.EditPayload{
		Nation:      nationName,
		DispatchID:  dispatchID,
		Title:       req.Title,
		Text:        req.Text,
		Category:    req.Category,
		Subcategory: req.Subcategory,
	}
	job, err := c.db.InsertDispatchJob(r.Context(), store.DispatchEdit, payload)
	if err != nil {
		writeError(w, apierr.ErrInternal)
		return
	}

	author := auth.Subject(r.Context())
	c.dispatch.Enqueue(r.Context(), worker.IntermediateDispatch{
		JobID:       job.ID,
		Nation:      nationName,
		Author:      author,
		Action:      store.DispatchEdit,
		ID:          &dispatchID,
		Title:       &req.Title,
		Text:        &req.Text,
		Category:    &req.Category,
		Subcategory: &req.Subcategory,
	})

	writeAccepted(w, r, "", job)
}

type removeDispatchRequest struct {
	Nation string `json:"nation"`
}

func (c *Controller) RemoveDispatch(w http.ResponseWriter, r *http.Request) {
	dispatchID, err := pathDispatchID(r)
	if err != nil {
		writeError(w, apierr.ErrDispatchNotFound)
		return
	}

	var req removeDispatchRequest
	if err := decodeBody(r, &req, "nation"); err != nil {
		writeError(w, err)
		return
	}
	nationName := strings.ToLower(strings.TrimSpace(req.Nation))
	if _, err := c.dispatchNations.GetPassword(r.Context(), nationName); err != nil {
		writeError(w, apierr.ErrInvalidNation)
		return
	}

	payload := store.RemovePayload{Nation: nationName, DispatchID: dispatchID}
	job, err := c.db.InsertDispatchJob(r.Context(), store.DispatchRemove, payload)
	if err != nil {
		writeError(w, apierr.ErrInternal)
		return
	}

	author := auth.Subject(r.Context())
	c.dispatch.Enqueue(r.Context(), worker.IntermediateDispatch{
		JobID:  job.ID,
		Nation: nationName,
		Author: author,
		Action: store.DispatchRemove,
		ID:     &dispatchID,
	})

	writeAccepted(w, r, "", job)
}

func (c *Controller) GetDispatchJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathJobID(r)
	if err != nil {
		writeError(w, apierr.ErrJobNotFound)
		return
	}
	job, err := c.db.GetDispatchJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- rmbposts ---

type createRmbPostRequest struct {
	Nation string `json:"nation"`
	Region string `json:"region"`
	Text   string `json:"text"`
}

func (c *Controller) CreateRmbPost(w http.ResponseWriter, r *http.Request) {
	var req createRmbPostRequest
	if err := decodeBody(r, &req, "nation", "region", "text"); err != nil {
		writeError(w, err)
		return
	}
	if err := requireNonEmpty(map[string]string{"nation": req.Nation, "region": req.Region, "text": req.Text}); err != nil {
		writeError(w, err)
		return
	}
	nationName := strings.ToLower(strings.TrimSpace(req.Nation))
	if _, err := c.rmbpostNations.GetPassword(r.Context(), nationName); err != nil {
		writeError(w, apierr.ErrInvalidNation)
		return
	}

	job, err := c.db.InsertRmbPostJob(r.Context(), nationName, req.Region, req.Text)
	if err != nil {
		writeError(w, apierr.ErrInternal)
		return
	}

	c.rmbpost.Enqueue(r.Context(), worker.IntermediateRmbPost{
		JobID:  job.ID,
		Nation: nationName,
		Region: req.Region,
		Text:   req.Text,
	})

	nationsHeader(w, "rmbpost-nations", c.rmbpostNations.ListNations(r.Context()))
	writeAccepted(w, r, "/queue/rmbposts/"+strconv.FormatInt(job.ID, 10), job)
}

func (c *Controller) GetRmbPostJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathJobID(r)
	if err != nil {
		writeError(w, apierr.ErrJobNotFound)
		return
	}
	job, err := c.db.GetRmbPostJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- telegrams ---

type telegramRequest struct {
	Sender     string `json:"sender"`
	Recipient  string `json:"recipient"`
	TelegramID string `json:"telegram_id"`
	SecretKey  string `json:"secret_key"`
	Recruitment bool  `json:"recruitment"`
}

func (c *Controller) CreateTelegram(w http.ResponseWriter, r *http.Request) {
	var req telegramRequest
	if err := decodeBody(r, &req, "sender", "recipient", "telegram_id", "secret_key"); err != nil {
		writeError(w, err)
		return
	}

	kind := worker.Standard
	if req.Recruitment {
		kind = worker.Recruitment
	}

	c.telegram.Enqueue(r.Context(), worker.Telegram{
		Sender:     req.Sender,
		Recipient:  req.Recipient,
		TelegramID: req.TelegramID,
		SecretKey:  req.SecretKey,
		Kind:       kind,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) DeleteTelegram(w http.ResponseWriter, r *http.Request) {
	telegramID := r.URL.Query().Get("telegram_id")
	c.telegram.Delete(r.Context(), telegramID)
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) ListTelegrams(w http.ResponseWriter, r *http.Request) {
	pending := c.telegram.List(r.Context())
	writeJSON(w, http.StatusOK, pending)
}

// --- helpers ---

func pathDispatchID(r *http.Request) (int32, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(id), nil
}

func pathJobID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	return strconv.ParseInt(raw, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAccepted(w http.ResponseWriter, r *http.Request, location string, body any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	writeJSON(w, http.StatusAccepted, body)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apierr.StatusCode(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"message": apierr.Message(err)})
}
