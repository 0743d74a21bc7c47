// Copyright 2021 Jack Bister
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackbister/zdbtimeline/internal/config"
	"github.com/jackbister/zdbtimeline/internal/correlate"
	"github.com/jackbister/zdbtimeline/internal/events"
	"github.com/jackbister/zdbtimeline/internal/ingest"
	"github.com/jackbister/zdbtimeline/internal/parser"
	"github.com/jackbister/zdbtimeline/internal/util"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Web interface {
	Serve(ctx context.Context) error
	Handler() http.Handler
}

type webImpl struct {
	cfg       *config.Config
	eventRepo events.Repository
	ingester  *ingest.Ingester

	logger *zap.Logger
}

type webError struct {
	err  string
	code int
}

func (w webError) Error() string {
	return w.err
}

type WebParams struct {
	dig.In

	Cfg       *config.Config
	EventRepo events.Repository
	Ingester  *ingest.Ingester
	Logger    *zap.Logger
}

func NewWeb(p WebParams) Web {
	return &webImpl{
		cfg:       p.Cfg,
		eventRepo: p.EventRepo,
		ingester:  p.Ingester,

		logger: p.Logger,
	}
}

// Serve listens on the configured address until ctx is cancelled.
func (wi *webImpl) Serve(ctx context.Context) error {
	s := &http.Server{
		Addr:    wi.cfg.Web.Address,
		Handler: wi.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(shutdownCtx)
	}()
	wi.logger.Info("Starting Web GUI",
		zap.String("address", wi.cfg.Web.Address))
	err := s.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (wi *webImpl) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(util.NewGinZapLogger(zapcore.InfoLevel, wi.logger))
	r.SetTrustedProxies(nil)

	r.GET("/api/v1/events", func(c *gin.Context) {
		filter, wErr := wi.parseFilter(c)
		if wErr != nil {
			c.AbortWithStatusJSON(wErr.code, gin.H{"error": wErr.err})
			return
		}
		recs, err := wi.eventRepo.Filter(*filter)
		if err != nil {
			c.AbortWithStatusJSON(500, gin.H{"error": "Got error when filtering events: " + err.Error()})
			return
		}
		ret := make([]EventJSON, 0, len(recs))
		for _, rec := range recs {
			ret = append(ret, toEventJSON(rec))
		}
		c.JSON(200, ret)
	})

	r.GET("/api/v1/modifications/resolved", func(c *gin.Context) {
		tolerance := wi.cfg.Correlation.TxgTolerance
		if s := c.Query("tolerance"); s != "" {
			t, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				c.AbortWithStatusJSON(400, gin.H{"error": "Got error when parsing tolerance: " + err.Error()})
				return
			}
			tolerance = t
		}
		mods, err := wi.eventRepo.Filter(events.Filter{
			Kinds:    []events.Kind{events.KindFileModify},
			PoolGuid: c.Query("pool"),
		})
		if err != nil {
			c.AbortWithStatusJSON(500, gin.H{"error": "Got error when getting modify events: " + err.Error()})
			return
		}
		ubRecs, err := wi.eventRepo.Filter(events.Filter{
			Kinds:    []events.Kind{events.KindUberblock},
			PoolGuid: c.Query("uberblockPool"),
		})
		if err != nil {
			c.AbortWithStatusJSON(500, gin.H{"error": "Got error when getting uberblock events: " + err.Error()})
			return
		}
		ubs := make([]events.UberblockEvent, 0, len(ubRecs))
		for _, rec := range ubRecs {
			if ub, ok := rec.Event.(events.UberblockEvent); ok {
				ubs = append(ubs, ub)
			}
		}
		resolutions := correlate.Resolve(ubs, mods, tolerance)
		ret := make([]ResolvedJSON, 0, len(resolutions))
		for _, res := range resolutions {
			ret = append(ret, toResolvedJSON(res))
		}
		c.JSON(200, ret)
	})

	r.POST("/api/v1/dumps", func(c *gin.Context) {
		source := c.Query("source")
		if source == "" {
			c.AbortWithStatusJSON(400, gin.H{"error": "source must be specified as a query parameter"})
			return
		}
		res, err := wi.ingester.Ingest(c.Request.Context(), c.Request.Body, source)
		if errors.Is(err, ingest.ErrUnsupportedFormat) {
			c.AbortWithStatusJSON(400, gin.H{"error": err.Error()})
			return
		} else if err != nil {
			c.AbortWithStatusJSON(500, gin.H{"error": "Got error when ingesting dump: " + err.Error()})
			return
		}
		c.JSON(200, IngestResultJSON{
			Source:   res.Source,
			SourceId: res.SourceId,
			Format:   res.Format.String(),
			Lines:    res.Lines,
			Events:   res.Events,
		})
	})

	g := r.Group("/api/v1")
	addConfigEndpoints(g, wi)
	addEnumEndpoints(g, wi)

	return r
}

func (wi *webImpl) parseFilter(c *gin.Context) (*events.Filter, *webError) {
	f := events.Filter{
		PoolGuid: c.Query("pool"),
		Source:   c.Query("source"),
	}
	for _, param := range c.QueryArray("kind") {
		for _, s := range strings.Split(param, ",") {
			if s == "" {
				continue
			}
			k, err := events.ParseKind(s)
			if err != nil {
				return nil, &webError{err: "Got error when parsing kind: " + err.Error(), code: 400}
			}
			f.Kinds = append(f.Kinds, k)
		}
	}
	var wErr *webError
	if f.MinTxg, wErr = parseTxgParameter(c, "minTxg"); wErr != nil {
		return nil, wErr
	}
	if f.MaxTxg, wErr = parseTxgParameter(c, "maxTxg"); wErr != nil {
		return nil, wErr
	}
	if f.StartTime, wErr = wi.parseTimeParameter(c, "startTime"); wErr != nil {
		return nil, wErr
	}
	if f.EndTime, wErr = wi.parseTimeParameter(c, "endTime"); wErr != nil {
		return nil, wErr
	}
	if s := c.Query("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			return nil, &webError{err: fmt.Sprintf("limit must be a non-negative integer but was '%s'", s), code: 400}
		}
		f.Limit = limit
	}
	return &f, nil
}

func parseTxgParameter(c *gin.Context, name string) (*uint64, *webError) {
	s := c.Query(name)
	if s == "" {
		return nil, nil
	}
	txg, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, &webError{err: "Got error when parsing " + name + ": " + err.Error(), code: 400}
	}
	return &txg, nil
}

func (wi *webImpl) parseTimeParameter(c *gin.Context, name string) (*time.Time, *webError) {
	s := c.Query(name)
	if s == "" {
		return nil, nil
	}
	t, err := parser.ParseTimeFilter(s, wi.cfg.Timezone)
	if err != nil {
		return nil, &webError{err: "Got error when parsing " + name + ": " + err.Error(), code: 400}
	}
	return &t, nil
}
