package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openfleet/gt06d/config"
)

type MetricProvider interface {
	MetricRendererHandler() (string, map[string]uint64)
}

/*
Server provides an HTTP endpoint for the http input plugin of Telegraf,
rendering every registered provider in influx line protocol.
https://github.com/influxdata/telegraf/tree/master/plugins/inputs/http
*/
type Server struct {
	ctx       context.Context
	wg        *sync.WaitGroup
	host      string
	port      int
	renderers []MetricProvider
	tags      []string
}

func NewServer(ctx context.Context, wg *sync.WaitGroup, cfg *config.MetricsConfig, tags []string, renderers []MetricProvider) *Server {
	return &Server{
		wg:        wg,
		host:      cfg.Host,
		port:      cfg.Port,
		ctx:       ctx,
		renderers: renderers,
		tags:      tags,
	}
}

func (s *Server) metricsHandler(w http.ResponseWriter, req *http.Request) {
	for _, renderer := range s.renderers {
		metricName, fieldsMap := renderer.MetricRendererHandler()

		// Render fields sorted so the line stays stable between scrapes.
		keys := make([]string, 0, len(fieldsMap))
		for k := range fieldsMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fieldsArray := make([]string, 0, len(keys))
		for _, k := range keys {
			fieldsArray = append(fieldsArray, fmt.Sprintf("%s=%d", k, fieldsMap[k]))
		}

		tags := strings.Join(s.tags, ",")
		fields := strings.Join(fieldsArray, ",")
		timestamp := time.Now().UnixNano()

		fmt.Fprintf(w, "%s,%s %s %d\n", metricName, tags, fields, timestamp)
	}
}

func (s *Server) Start() {
	log := config.GetLogger(s.ctx)

	url := fmt.Sprintf("%s:%d", s.host, s.port)

	log.Infof("Start metrics server on %s", url)

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.metricsHandler)

	httpServer := &http.Server{
		Addr:              url,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second, // Potential Slowloris Attack if not set
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("Error in metrics server. %v", err)
		}
	}()

	<-s.ctx.Done()
	err := httpServer.Shutdown(context.Background())
	if err != nil {
		log.Errorf("Failed to stop metrics server. %v", err)
	}
}
