// media_echo открывает один аудио канал и возвращает принятые RTP пакеты
// отправителю. Локальное SDP печатается в stdout, SDP удаленной стороны
// читается из файла. Метрики доступны по HTTP в формате Prometheus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arzzra/media_core/pkg/clock"
	"github.com/arzzra/media_core/pkg/media"
	"github.com/arzzra/media_core/pkg/media_sdp"
	"github.com/arzzra/media_core/pkg/rtp"
	"github.com/arzzra/media_core/pkg/scheduler"
	"github.com/arzzra/media_core/pkg/session"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML конфигурация каналов")
		remoteSDP   = flag.String("remote", "", "Файл с SDP удаленной стороны")
		mode        = flag.String("mode", "netwloop", "Режим соединения: sendrecv, recvonly, sendonly, inactive, netwloop")
		metricsAddr = flag.String("metrics", "127.0.0.1:9100", "Адрес HTTP сервера метрик")
		rtpTimeout  = flag.Duration("rtp-timeout", 0, "Закрыть канал без входящего RTP (0 отключает)")
		local       = flag.Bool("local", false, "Привязка к локальному адресу")
		debug       = flag.Bool("debug", false, "Отладочное логирование")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*configPath, *remoteSDP, *mode, *metricsAddr, *rtpTimeout, *local); err != nil {
		slog.Error("завершение с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func loadConfig(path string) (session.Config, error) {
	if path == "" {
		return session.DefaultConfig(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return session.Config{}, err
	}
	defer f.Close()
	return session.LoadConfig(f)
}

func run(configPath, remoteSDP, modeName, metricsAddr string, rtpTimeout time.Duration, local bool) error {
	config, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	mode, err := rtp.ParseConnectionMode(modeName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wall := clock.NewWallClock()
	schedConfig := scheduler.DefaultConfig()
	schedConfig.Registerer = prometheus.DefaultRegisterer
	sched, err := scheduler.New(wall, schedConfig)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	collector := rtp.NewStatisticsCollector("media_core")
	prometheus.MustRegister(collector)

	managerConfig := session.DefaultManagerConfig()
	managerConfig.Channel = config
	managerConfig.RtpTimeout = rtpTimeout
	manager, err := session.NewManager(session.Dependencies{
		Scheduler: sched,
		Clock:     wall,
		SSRC:      rtp.NewSSRCGenerator(),
		Processor: media.NewG711Processor(),
		Collector: collector,
	}, managerConfig)
	if err != nil {
		return err
	}
	defer manager.Shutdown()

	channel, err := manager.Create()
	if err != nil {
		return err
	}

	channel.DtmfInput().OnDigit(func(e media.DTMFEvent) {
		slog.Info("принят DTMF", slog.String("digit", e.Digit.String()), slog.Duration("duration", e.Duration))
	})

	if err := channel.Open(); err != nil {
		return err
	}
	if err := channel.Bind(local, config.RtcpMux); err != nil {
		return err
	}
	channel.SetMode(mode)

	if remoteSDP != "" {
		if err := connectRemote(channel, remoteSDP); err != nil {
			return err
		}
	}

	md, err := channel.MediaDescription()
	if err != nil {
		return err
	}
	raw, err := media_sdp.BuildSessionDescription(config.AdvertisedAddress(local), md).Marshal()
	if err != nil {
		return err
	}
	fmt.Print(string(raw))

	server := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("сервер метрик остановлен", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	slog.Info("канал закрыт", slog.String("statistics", channel.Statistics().Snapshot().String()))
	return nil
}

func connectRemote(channel *session.AudioChannel, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	offer, err := media_sdp.ParseOffer(data)
	if err != nil {
		return err
	}
	if _, err := media_sdp.Answer(channel.Formats(), offer); err != nil {
		return err
	}
	if err := channel.NegotiateFormats(offer); err != nil {
		return err
	}
	if err := channel.ConnectRtp(offer.Address, offer.Port); err != nil {
		return err
	}
	return channel.ConnectRtcp(offer.RtcpAddress, offer.RtcpPort)
}
