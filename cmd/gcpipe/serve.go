package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tarm/serial"

	"github.com/mastercactapus/gcpipe/bridge"
	"github.com/mastercactapus/gcpipe/config"
	"github.com/mastercactapus/gcpipe/console"
	"github.com/mastercactapus/gcpipe/motion"
	"github.com/mastercactapus/gcpipe/pipeline"
	"github.com/mastercactapus/gcpipe/status"
	"github.com/mastercactapus/gcpipe/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline with the console, motion output and HTTP API",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&port, "port", "", "Serial port for the console (default stdin/stdout).")
	f.IntVar(&baud, "baud", 115200, "Baud rate for serial ports.")
	f.StringVar(&addr, "addr", ":9091", "Address to bind the HTTP API to (empty to disable).")
	f.StringVar(&dataDir, "dir", "./data", "Data directory for G-code files.")
	f.StringVar(&motionPort, "motion-port", "", "Port to write validated commands to (default stdout).")
	f.StringVar(&bridgeURL, "spjs", "", "Websocket URL of an SPJS server that owns the motion port.")
	rootCmd.AddCommand(serveCmd)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// openMotion opens the motion output. Replies from a bridged port are
// echoed to the console.
func openMotion(ctx context.Context, cfg config.MotionConfig, echo io.Writer) (io.WriteCloser, error) {
	switch {
	case cfg.Bridge != "":
		log.Printf("motion output: %s via %s", cfg.Port, cfg.Bridge)
		b := bridge.New(cfg.Bridge, cfg.Port)
		go func() {
			err := b.Forward(ctx, echo)
			if err != nil && ctx.Err() == nil {
				log.Println("ERROR: bridge echo:", err)
			}
		}()
		return b, nil
	case cfg.Port != "":
		log.Printf("motion output: %s @ %d", cfg.Port, cfg.Baud)
		sp, err := serial.OpenPort(&serial.Config{Name: cfg.Port, Baud: cfg.Baud})
		if err != nil {
			return nil, err
		}
		return sp, nil
	}
	return nopCloser{os.Stdout}, nil
}

func openConsole(cfg config.SerialConfig) (io.ReadWriteCloser, error) {
	if cfg.Port == "" {
		return struct {
			io.Reader
			io.WriteCloser
		}{os.Stdin, nopCloser{os.Stdout}}, nil
	}
	log.Printf("console: %s @ %d", cfg.Port, cfg.Baud)
	return serial.OpenPort(&serial.Config{Name: cfg.Port, Baud: cfg.Baud})
}

func newPipeline(cfg config.Config, files pipeline.FileSource, ind pipeline.Indicator, echo io.Writer) (*pipeline.Pipeline, error) {
	opts := cfg.PipelineOptions()
	opts.Files = files
	opts.Indicator = ind
	opts.Echo = echo
	p, err := pipeline.New(opts)
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	return p, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	link, err := openConsole(cfg.Serial)
	if err != nil {
		return err
	}
	defer link.Close()
	out := console.NewSyncWriter(link)

	motionOut, err := openMotion(ctx, cfg.Motion, out)
	if err != nil {
		return err
	}
	defer motionOut.Close()

	files := storage.NewDir(cfg.DataDir)
	events := status.NewBroadcaster()
	defer events.Shutdown()

	p, err := newPipeline(cfg, files, events, out)
	if err != nil {
		return err
	}
	err = p.Start(ctx)
	if err != nil {
		return err
	}

	go func() {
		err := motion.NewWriter(motionOut).Run(ctx, p)
		if err != nil && ctx.Err() == nil {
			log.Println("ERROR: motion output:", err)
			p.Raise(err)
		}
	}()

	con := console.New(p, files)
	go func() {
		err := con.Serve(ctx, link, out)
		if err != nil && ctx.Err() == nil {
			log.Println("ERROR: console:", err)
		}
	}()

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: withCORS(newAPI(p, con, files, events)),
		}
		go func() {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()

		log.Println("listening on", cfg.HTTP.Addr)
		err = srv.ListenAndServe()
		if err != http.ErrServerClosed {
			stop()
			p.Wait()
			return err
		}
	}

	<-ctx.Done()
	p.Wait()
	return nil
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		log.Printf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
		h.ServeHTTP(w, req)
	})
}
