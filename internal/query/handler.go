package query

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Wuchinator/campaign-reports/internal/interaction"
	"github.com/Wuchinator/campaign-reports/pkg/cache"
	"github.com/Wuchinator/campaign-reports/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthCheck probes one dependency for /healthz.
type HealthCheck func(ctx context.Context) error

// Handler exposes the reports service over HTTP. Responses are cached as
// rendered JSON when a cache is configured.
type Handler struct {
	service        *Service
	cache          *cache.Cache
	metrics        *metrics.Metrics
	metricsHandler http.Handler
	defaultLimit   int
	allowedOrigins []string
	checks         map[string]HealthCheck
	logger         *zap.Logger
}

type HandlerConfig struct {
	Cache          *cache.Cache
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	DefaultLimit   int
	AllowedOrigins []string
}

func NewHandler(service *Service, cfg HandlerConfig, logger *zap.Logger) *Handler {
	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	return &Handler{
		service:        service,
		cache:          cfg.Cache,
		metrics:        cfg.Metrics,
		metricsHandler: metricsHandler,
		defaultLimit:   cfg.DefaultLimit,
		allowedOrigins: cfg.AllowedOrigins,
		checks:         make(map[string]HealthCheck),
		logger:         logger,
	}
}

// AddHealthCheck registers a dependency probed by /healthz.
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(recoveryMiddleware(h.logger))
	r.Use(loggingMiddleware(h.logger))
	r.Use(h.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", h.metricsHandler)

	r.Route("/api/reports", func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.campaignsReport)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.campaignReport)
				r.Get("/chart", h.campaignChart)
				r.Get("/recipients", h.campaignRecipients)
				r.Get("/activity", h.campaignActivity)
				r.Get("/links", h.campaignLinks)
				r.Get("/locations", h.campaignLocations)
				r.Get("/devices", h.campaignDevices)
			})
		})

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", h.contactsReport)
			r.Get("/activity", h.contactsActivity)
			r.Get("/locations", h.contactsLocations)
			r.Get("/devices", h.contactsDevices)
			r.Get("/{id}/campaigns", h.contactCampaignActivity)
			r.Get("/{id}/mailing-lists", h.contactMailingListActivity)
		})

		r.Route("/mailing-lists", func(r chi.Router) {
			r.Get("/", h.mailingListsReport)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.mailingListReport)
				r.Get("/chart", h.mailingListChart)
				r.Get("/activity", h.mailingListActivity)
				r.Get("/locations", h.mailingListLocations)
				r.Get("/devices", h.mailingListDevices)
			})
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	result := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			result[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}

	body, _ := json.Marshal(result)
	writeJSON(w, status, body)
}

// Campaigns

func (h *Handler) campaignsReport(w http.ResponseWriter, r *http.Request) {
	siteID, ok := h.optionalID(w, r, "siteId")
	if !ok {
		return
	}
	h.respond(w, r, "campaigns_report", []string{cache.GlobalTag}, func(ctx context.Context) (any, error) {
		return h.service.CampaignsReport(ctx, siteID)
	})
}

func (h *Handler) campaignReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "campaign_report", []string{cache.CampaignTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.CampaignReport(ctx, id)
	})
}

func (h *Handler) campaignChart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	interval := r.URL.Query().Get("interval")
	h.respond(w, r, "campaign_chart", []string{cache.CampaignTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.CampaignChart(ctx, id, interval)
	})
}

func (h *Handler) campaignRecipients(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sendoutID, ok := h.optionalID(w, r, "sendoutId")
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "campaign_recipients", []string{cache.CampaignTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.CampaignRecipients(ctx, id, sendoutID, limit)
	})
}

func (h *Handler) campaignActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	kind, ok := h.kind(w, r, interaction.TargetCampaign)
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "campaign_activity", []string{cache.CampaignTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.CampaignContactActivity(ctx, id, kind, limit)
	})
}

func (h *Handler) campaignLinks(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "campaign_links", []string{cache.CampaignTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.CampaignLinks(ctx, id, limit)
	})
}

func (h *Handler) campaignLocations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "campaign_locations", []string{cache.CampaignTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.CampaignLocations(ctx, id, limit)
	})
}

func (h *Handler) campaignDevices(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	detailed, ok := h.detailed(w, r)
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "campaign_devices", []string{cache.CampaignTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.CampaignDevices(ctx, id, detailed, limit)
	})
}

// Contacts

func (h *Handler) contactsReport(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "contacts_report", []string{cache.GlobalTag}, func(ctx context.Context) (any, error) {
		return h.service.ContactsReport(ctx)
	})
}

func (h *Handler) contactsActivity(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "contacts_activity", []string{cache.GlobalTag}, func(ctx context.Context) (any, error) {
		return h.service.ContactsActivity(ctx, limit)
	})
}

func (h *Handler) contactsLocations(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "contacts_locations", []string{cache.GlobalTag}, func(ctx context.Context) (any, error) {
		return h.service.ContactsLocations(ctx, limit)
	})
}

func (h *Handler) contactsDevices(w http.ResponseWriter, r *http.Request) {
	detailed, ok := h.detailed(w, r)
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "contacts_devices", []string{cache.GlobalTag}, func(ctx context.Context) (any, error) {
		return h.service.ContactsDevices(ctx, detailed, limit)
	})
}

func (h *Handler) contactCampaignActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	campaignIDs, ok := h.idList(w, r, "campaignId")
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "contact_campaign_activity", []string{cache.ContactTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.ContactCampaignActivity(ctx, id, limit, campaignIDs...)
	})
}

func (h *Handler) contactMailingListActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	mailingListIDs, ok := h.idList(w, r, "mailingListId")
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "contact_mailing_list_activity", []string{cache.ContactTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.ContactMailingListActivity(ctx, id, limit, mailingListIDs...)
	})
}

// Mailing lists

func (h *Handler) mailingListsReport(w http.ResponseWriter, r *http.Request) {
	siteID, ok := h.optionalID(w, r, "siteId")
	if !ok {
		return
	}
	h.respond(w, r, "mailing_lists_report", []string{cache.GlobalTag}, func(ctx context.Context) (any, error) {
		return h.service.MailingListsReport(ctx, siteID)
	})
}

func (h *Handler) mailingListReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "mailing_list_report", []string{cache.MailingListTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.MailingListReport(ctx, id)
	})
}

func (h *Handler) mailingListChart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	interval := r.URL.Query().Get("interval")
	h.respond(w, r, "mailing_list_chart", []string{cache.MailingListTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.MailingListChart(ctx, id, interval)
	})
}

func (h *Handler) mailingListActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	kind, ok := h.kind(w, r, interaction.TargetMailingList)
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "mailing_list_activity", []string{cache.MailingListTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.MailingListContactActivity(ctx, id, kind, limit)
	})
}

func (h *Handler) mailingListLocations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "mailing_list_locations", []string{cache.MailingListTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.MailingListLocations(ctx, id, limit)
	})
}

func (h *Handler) mailingListDevices(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	detailed, ok := h.detailed(w, r)
	if !ok {
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "mailing_list_devices", []string{cache.MailingListTag(id)}, func(ctx context.Context) (any, error) {
		return h.service.MailingListDevices(ctx, id, detailed, limit)
	})
}

// respond serves a report from the cache or computes, caches and writes it.
// Cache failures are logged and never fail the request.
func (h *Handler) respond(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	tags []string,
	run func(ctx context.Context) (any, error),
) {
	ctx := r.Context()
	key := r.URL.Path + "?" + r.URL.Query().Encode()

	if h.cache.Enabled() {
		body, hit, err := h.cache.Get(ctx, key)
		if err != nil {
			h.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		h.metrics.RecordCache(name, hit)
		if hit {
			writeJSON(w, http.StatusOK, body)
			return
		}
	}

	var gen cache.Generation
	cacheable := h.cache.Enabled()
	if cacheable {
		var err error
		if gen, err = h.cache.Generation(ctx, tags...); err != nil {
			h.logger.Warn("Cache generation read failed", zap.String("key", key), zap.Error(err))
			cacheable = false
		}
	}

	start := time.Now()
	result, err := run(ctx)
	h.metrics.ObserveReport(name, time.Since(start), err)
	if err != nil {
		internalError(w, h.logger, r, err)
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		internalError(w, h.logger, r, err)
		return
	}

	if cacheable {
		stored, err := h.cache.SetAt(ctx, gen, key, body)
		if err != nil {
			h.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
		} else if !stored {
			h.logger.Debug("Report invalidated while computed, not cached", zap.String("key", key))
		}
	}

	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) optionalID(w http.ResponseWriter, r *http.Request, param string) (*int64, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(w, "invalid "+param)
		return nil, false
	}
	return &id, true
}

// idList accepts repeated and comma separated values.
func (h *Handler) idList(w http.ResponseWriter, r *http.Request, param string) ([]int64, bool) {
	var ids []int64
	for _, raw := range r.URL.Query()[param] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				badRequest(w, "invalid "+param)
				return nil, false
			}
			ids = append(ids, id)
		}
	}
	return ids, true
}

// limit falls back to the configured default when absent. Zero and negative
// values mean no limit.
func (h *Handler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(w, "invalid limit")
		return 0, false
	}
	return limit, true
}

func (h *Handler) detailed(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("detailed")
	if raw == "" {
		return false, true
	}
	detailed, err := strconv.ParseBool(raw)
	if err != nil {
		badRequest(w, "invalid detailed")
		return false, false
	}
	return detailed, true
}

func (h *Handler) kind(w http.ResponseWriter, r *http.Request, t interaction.TargetType) (interaction.Kind, bool) {
	kind, err := interaction.ParseKind(t, r.URL.Query().Get("interaction"))
	if err != nil {
		badRequest(w, "invalid interaction for "+string(t))
		return "", false
	}
	return kind, true
}
