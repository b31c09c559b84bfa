package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/internal/auth"
	"github.com/satriahrh/konsulta/internal/consultation"
)

// consultclient drives one offline consultation against a local server:
// open, stream an audio file as the microphone, stop, wait for suggestions
// and submit the bill.
func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	_ = godotenv.Load()
	host := envOr("KONSULTA_HOST", "localhost:8080")
	audioPath := envOr("AUDIO_FILE", "sample_audio.wav")

	validator, err := auth.NewValidator(os.Getenv("JWT_SECRET"))
	if err != nil {
		logger.Fatal("Invalid JWT_SECRET", zap.Error(err))
	}
	token, err := validator.GenerateClinicianToken("dev-clinician", time.Hour)
	if err != nil {
		logger.Fatal("Failed to generate token", zap.Error(err))
	}

	c := &client{base: "http://" + host + "/api/v1", token: token, logger: logger}

	var opened consultation.Snapshot
	err = c.call(http.MethodPost, "/consultations", map[string]interface{}{
		"appointment_id": fmt.Sprintf("appt-%d", time.Now().Unix()),
		"patient_id":     "dev-patient",
		"mode":           "offline",
		"base_fee":       150000,
	}, &opened)
	if err != nil {
		logger.Fatal("Failed to open consultation", zap.Error(err))
	}
	id := opened.Info.ID
	logger.Info("Consultation opened", zap.String("consultationID", id))

	u := url.URL{Scheme: "ws", Host: host, Path: "/ws", RawQuery: "consultation_id=" + id}
	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer ws.Close()

	ready := make(chan consultation.State, 16)
	done := make(chan struct{})
	go readEvents(ws, logger, ready, done)

	if err := ws.WriteJSON(map[string]interface{}{
		"type":        "microphone_ready",
		"sample_rate": 16000,
		"encoding":    "LINEAR16",
	}); err != nil {
		logger.Fatal("Failed to announce microphone", zap.Error(err))
	}
	time.Sleep(200 * time.Millisecond)

	if err := c.call(http.MethodPost, "/consultations/"+id+"/recording/start", nil, nil); err != nil {
		logger.Fatal("Failed to start recording", zap.Error(err))
	}
	streamFile(ws, audioPath, logger)
	if err := c.call(http.MethodPost, "/consultations/"+id+"/recording/stop", nil, nil); err != nil {
		logger.Fatal("Failed to stop recording", zap.Error(err))
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	for {
		select {
		case state := <-ready:
			if state != consultation.StateReadyForBilling {
				continue
			}
			var result map[string]interface{}
			if err := c.call(http.MethodPost, "/consultations/"+id+"/bill/submit", nil, &result); err != nil {
				logger.Fatal("Failed to submit bill", zap.Error(err))
			}
			logger.Info("Bill submitted", zap.Any("billingRecordID", result["billing_record_id"]))
			c.call(http.MethodDelete, "/consultations/"+id, nil, nil)
			<-done
			return
		case <-done:
			return
		case <-interrupt:
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

type client struct {
	base   string
	token  string
	logger *zap.Logger
}

func (c *client) call(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, string(data))
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func streamFile(ws *websocket.Conn, path string, logger *zap.Logger) {
	audio, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("Failed to read audio file", zap.String("path", path), zap.Error(err))
	}

	const chunkSize = 4096
	start := time.Now()
	for offset := 0; offset < len(audio); offset += chunkSize {
		end := min(offset+chunkSize, len(audio))
		if err := ws.WriteMessage(websocket.BinaryMessage, audio[offset:end]); err != nil {
			logger.Fatal("Failed to send audio chunk", zap.Error(err))
		}
		time.Sleep(20 * time.Millisecond)
	}
	logger.Info("Finished streaming audio",
		zap.Int("bytes", len(audio)),
		zap.Duration("took", time.Since(start)))
}

func readEvents(ws *websocket.Conn, logger *zap.Logger, states chan<- consultation.State, done chan<- struct{}) {
	defer close(done)
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			logger.Info("Socket closed", zap.Error(err))
			return
		}

		var msg struct {
			Type  string             `json:"type"`
			Event consultation.Event `json:"event"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Warn("Unreadable message", zap.Error(err))
			continue
		}
		if msg.Type != "event" {
			logger.Info("Received message", zap.String("type", msg.Type), zap.ByteString("payload", payload))
			continue
		}

		logger.Info("Consultation event",
			zap.String("type", string(msg.Event.Type)),
			zap.String("state", string(msg.Event.State)))
		if msg.Event.Type == consultation.EventStateChanged {
			select {
			case states <- msg.Event.State:
			default:
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
