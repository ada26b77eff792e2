// Command speechtester streams a raw PCM file through the Volcengine recognizer and
// prints the capture transcript as it evolves. It exercises the same controller path
// the server uses for websocket audio.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/echocode/echo/backend/internal/config"
	"github.com/echocode/echo/backend/internal/logging"
	capturemodel "github.com/echocode/echo/backend/internal/model/capture"
	"github.com/echocode/echo/backend/internal/service/capture"
	"github.com/echocode/echo/backend/internal/service/speech"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type probeOptions struct {
	chunk    time.Duration
	realtime bool
	settle   time.Duration
	timeout  time.Duration
	lang     string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := probeOptions{}
	cmd := &cobra.Command{
		Use:           "speechtester <audio.pcm>",
		Short:         "Stream 16-bit mono PCM through streaming ASR and print transcripts",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.Speech.Enabled {
				return errors.New("speech recognition not configured: set SPEECH_* or ARK_* credentials")
			}
			if opts.lang != "" {
				cfg.Speech.ASRLanguage = opts.lang
			}
			rt, err := logging.New(logging.Options{Level: opts.logLevel, Stderr: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return probe(ctx, cmd.OutOrStdout(), cfg.Speech, f, opts, speech.NewStreamingRecognizer(cfg.Speech, rt.Logger))
		},
	}
	cmd.Flags().DurationVar(&opts.chunk, "chunk", 200*time.Millisecond, "audio per frame")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", true, "pace frames at playback speed")
	cmd.Flags().DurationVar(&opts.settle, "settle", 2*time.Second, "wait for trailing results before stopping")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 45*time.Second, "overall deadline")
	cmd.Flags().StringVar(&opts.lang, "lang", "", "recognition language (defaults to SPEECH_ASR_LANGUAGE)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	return cmd
}

// audioRecognizer is a recognizer that is fed raw audio.
type audioRecognizer interface {
	capture.Recognizer
	PushAudio(chunk []byte) error
}

func probe(ctx context.Context, out io.Writer, cfg config.SpeechConfig, audio io.Reader, opts probeOptions, rec audioRecognizer) error {
	ctrl := capture.NewController(nil, rec)
	unwatch := ctrl.Watch(func(s capturemodel.Session) {
		_, _ = fmt.Fprintf(out, "[%s] %s\n", s.Status, s.Transcript)
	})
	defer unwatch()

	if _, err := ctrl.Start(ctx); err != nil {
		return err
	}

	// 16-bit samples, one channel.
	size := int(int64(cfg.SampleRate) * 2 * int64(opts.chunk) / int64(time.Second))
	if size <= 0 {
		size = 3200
	}
	buf := make([]byte, size)
	for {
		n, err := io.ReadFull(audio, buf)
		if n > 0 {
			if perr := rec.PushAudio(buf[:n]); perr != nil {
				_, _ = ctrl.Stop(ctx)
				return perr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			_, _ = ctrl.Stop(ctx)
			return err
		}
		if opts.realtime {
			select {
			case <-ctx.Done():
				_, _ = ctrl.Stop(ctx)
				return ctx.Err()
			case <-time.After(opts.chunk):
			}
		}
	}

	select {
	case <-ctx.Done():
	case <-time.After(opts.settle):
	}
	if snap := ctrl.Snapshot(); snap.Status != capturemodel.StatusListening {
		return fmt.Errorf("recognition ended early: %s", snap.Transcript)
	}
	final, err := ctrl.Stop(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "final: %s\n", final.Transcript)
	return nil
}
