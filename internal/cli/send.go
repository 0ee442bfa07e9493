package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/gas-monitor/internal/protocol"
	"github.com/sweeney/gas-monitor/internal/serial"
)

func init() {
	cmd := &cobra.Command{
		Use:   "send COMMAND",
		Short: "Send a command to the sensor board",
		Long: "Send LED_ON, LED_OFF, BUZZER_ON, BUZZER_OFF, BOTH_ON, BOTH_OFF, AUTO_ON, AUTO_OFF " +
			"or THRESHOLD_<1-1023>. With --via the command goes through a running daemon; " +
			"otherwise the serial port is opened directly.",
		Args: cobra.ExactArgs(1),
		RunE: runSend,
	}

	cmd.Flags().String("via", "", "Base URL of a running daemon (e.g. http://localhost:8080)")
	cmd.Flags().Duration("wait", 2*time.Second, "How long to print device replies after sending")

	RootCmd.AddCommand(cmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	c, err := protocol.ParseCommand(args[0])
	if err != nil {
		return err
	}
	via, _ := cmd.Flags().GetString("via")
	if via != "" {
		return sendVia(cmd.Context(), cmd.OutOrStdout(), via, c)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	wait, _ := cmd.Flags().GetDuration("wait")

	opener := &serial.RealOpener{
		Baud:        cfg.Serial.Baud,
		ReadTimeout: cfg.Serial.ReadTimeout,
		Settle:      cfg.Serial.Settle,
	}
	target := cfg.Serial.Port
	if target == "" {
		if target, err = serial.FirstPort(opener); err != nil {
			return err
		}
	}
	session := serial.NewSession(opener, serial.SessionOptions{
		Attempts: cfg.Serial.Attempts,
		Backoff:  cfg.Serial.Backoff,
	})
	return sendDirect(cmd.Context(), cmd.OutOrStdout(), session, target, c, wait)
}

// lineSession is the part of *serial.Session used by sendDirect.
type lineSession interface {
	Connect(ctx context.Context, target string) error
	Read() (string, error)
	Write(text string) error
	Close() error
}

// sendDirect writes c to the port and echoes device replies until wait
// elapses or a status line shows the new state.
func sendDirect(ctx context.Context, out io.Writer, s lineSession, target string, c protocol.Command, wait time.Duration) error {
	token, err := protocol.Encode(c)
	if err != nil {
		return err
	}
	if err := s.Connect(ctx, target); err != nil {
		return err
	}
	defer s.Close()

	if err := s.Write(token); err != nil {
		return err
	}
	fmt.Fprintf(out, "sent %s to %s\n", token, target)

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.Read()
		if errors.Is(err, serial.ErrWouldBlock) {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if err != nil {
			return err
		}
		if !protocol.IsTelemetry(line) {
			fmt.Fprintf(out, "device: %s\n", line)
			continue
		}
		if rec, err := protocol.Parse(line, time.Now()); err == nil {
			fmt.Fprintf(out, "status: gas=%d threshold=%d led=%s buzzer=%s auto=%s\n",
				rec.Gas, rec.Threshold, rec.LED, rec.Buzzer, rec.Auto)
			return nil
		}
	}
	return nil
}

// sendVia posts c to a running daemon's /command endpoint.
func sendVia(ctx context.Context, out io.Writer, base string, c protocol.Command) error {
	token, err := protocol.Encode(c)
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(base, "/") + "/command"
	form := url.Values{"cmd": {token}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon refused %s: %s (%s)", token, msg, resp.Status)
	}
	fmt.Fprintln(out, msg)
	return nil
}
