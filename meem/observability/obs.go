package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/celerway/meem/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run consumes status messages and serves /metrics and /healthz until the context is cancelled.
func (obs *observability) Run(ctx context.Context) {
	obs.logger.Debug("Observability worker is running")
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-obs.channel:
				obs.handleChannelMessage(msg)
			}
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		obs.runHttpServer(ctx) // will return when context is cancelled.
	}()
	wg.Wait()
	obs.logger.Info("Observability worker is done")
}

func Initialize(params Params) *observability {
	reg := prometheus.NewRegistry()
	logger := log.NewWithPrefix(os.Stdout, os.Stderr, "[observability]")
	logger.SetLevel(params.LogLevel)
	obs := observability{
		channel:    params.Channel,
		logger:     logger,
		healthPort: params.HealthPort,
		promReg:    reg,
	}
	factory := promauto.With(reg)
	obs.inboundReceived = factory.NewCounter(prometheus.CounterOpts{
		Name: "meem_inbound_received",
		Help: "Number of inbound facet messages received from the broker",
	})
	obs.inboundUnmatch = factory.NewCounter(prometheus.CounterOpts{
		Name: "meem_inbound_unmatched",
		Help: "Number of inbound messages that matched no facet",
	})
	obs.inboundRejected = factory.NewCounter(prometheus.CounterOpts{
		Name: "meem_inbound_rejected",
		Help: "Number of inbound messages rejected for exceeding the buffer",
	})
	obs.outboundSent = factory.NewCounter(prometheus.CounterOpts{
		Name: "meem_outbound_sent",
		Help: "Number of messages published on outbound facets and control topics",
	})
	obs.outboundErrors = factory.NewCounter(prometheus.CounterOpts{
		Name: "meem_outbound_errors",
		Help: "Number of failed publishes",
	})
	obs.connects = factory.NewCounter(prometheus.CounterOpts{
		Name: "meem_connects",
		Help: "Number of successful broker connects",
	})
	obs.connectErrors = factory.NewCounter(prometheus.CounterOpts{
		Name: "meem_connect_errors",
		Help: "Number of failed broker connects",
	})
	obs.subscribeErrors = factory.NewCounter(prometheus.CounterOpts{
		Name: "meem_subscribe_errors",
		Help: "Number of failed inbound subscriptions",
	})
	obs.tapSent = factory.NewCounter(prometheus.CounterOpts{
		Name: "meem_tap_sent",
		Help: "Number of batches written to kafka by the tap",
	})
	obs.tapErrors = factory.NewCounter(prometheus.CounterOpts{
		Name: "meem_tap_errors",
		Help: "No of errors encountered by the tap",
	})
	obs.connected = factory.NewGauge(prometheus.GaugeOpts{
		Name: "meem_connected",
		Help: "Broker connection state (1 is connected)",
	})
	return &obs
}

// runHttpServer serves the healthz and metrics endpoints. It blocks until the context is cancelled.
func (obs *observability) runHttpServer(ctx context.Context) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", obs.healthPort),
		Handler: obs.Router(),
	}
	obs.logger.Infof("Observability service attempting to listen to port %s", srv.Addr)
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			obs.logger.Errorf("Observability service: %s", err)
		}
	}()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		obs.logger.Errorf("Observability service shutdown error: %s", err)
	}
	wg.Wait()
}

// Router returns the handler serving /metrics and /healthz.
func (obs *observability) Router() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.Handle("/metrics", promhttp.HandlerFor(obs.promReg, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", obs.HealthzHandler)
	return router
}

func (obs *observability) handleChannelMessage(msg StatusMessage) {
	obs.logger.Tracef("Observability received %s", msg)

	switch msg {
	case InboundReceived:
		obs.inboundReceived.Inc()
	case InboundUnmatched:
		obs.inboundUnmatch.Inc()
	case InboundRejected:
		obs.inboundRejected.Inc()
	case OutboundSent:
		obs.outboundSent.Inc()
	case OutboundError:
		obs.outboundErrors.Inc()
	case Connected:
		obs.connects.Inc()
		obs.connected.Set(1)
		obs.online.Store(true)
	case Disconnected:
		obs.connected.Set(0)
		obs.online.Store(false)
	case ConnectError:
		obs.connectErrors.Inc()
		obs.connected.Set(0)
		obs.online.Store(false)
	case SubscribeError:
		obs.subscribeErrors.Inc()
	case TapSent:
		obs.tapSent.Inc()
	case TapError:
		obs.tapErrors.Inc()
	default:
		obs.logger.Errorf("Observability: Unknown message received: %d", int(msg))
	}
}

func GetChannel(size int) Channel {
	return make(Channel, size)
}

func (obs *observability) HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	if obs.ready.Load() && obs.online.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	} else {
		w.WriteHeader(http.StatusLocked)
		_, _ = w.Write([]byte("not ready"))
	}
}

func (obs *observability) Ready() {
	obs.ready.Store(true)
}
