package lark

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

type sentMessage struct {
	idType, id, msgType, content string
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) Send(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMessage{receiveIDType, receiveID, msgType, content})
	return "om_1", nil
}

func escalatedSubmission() *entity.Submission {
	return &entity.Submission{
		ID:            "sub-1",
		AgreementID:   "AGR-2025-001",
		Vendor:        "PT Supplier ABC",
		Category:      "Electronics",
		InvoiceNumber: "INV-001",
		InvoiceDate:   entity.MustParseDate("2025-06-01"),
		GrandTotal:    16000000,
		Status:        entity.SubmissionStatusPendingCFO,
	}
}

func TestNotifier_NotifyEscalation(t *testing.T) {
	sender := &fakeSender{}
	n := newNotifier(sender, Config{ReceiveID: "ou_cfo", DashboardURL: "https://dash.example.com/"}, zap.NewNop())

	err := n.NotifyEscalation(context.Background(), escalatedSubmission(), "Daily limit exceeded, CFO approval required")
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "open_id", msg.idType)
	assert.Equal(t, "ou_cfo", msg.id)
	assert.Equal(t, "interactive", msg.msgType)

	var c card
	require.NoError(t, json.Unmarshal([]byte(msg.content), &c))
	assert.Equal(t, "CFO approval required", c.Header.Title.Content)
	assert.Equal(t, "orange", c.Header.Template)
	require.Len(t, c.Elements, 2)
	assert.Contains(t, msg.content, "Rp 16.000.000")
	assert.Contains(t, msg.content, "Daily limit exceeded")
	assert.Contains(t, msg.content, "https://dash.example.com/cfo?submission=sub-1")
}

func TestNotifier_NotifyDecision(t *testing.T) {
	sender := &fakeSender{}
	n := newNotifier(sender, Config{ReceiveIDType: "chat_id", ReceiveID: "oc_finance"}, zap.NewNop())

	sub := escalatedSubmission()
	sub.Status = entity.SubmissionStatusRejected
	sub.ReviewedBy = "0xCFO"
	sub.ReviewNote = "over budget"

	require.NoError(t, n.NotifyDecision(context.Background(), sub))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "chat_id", sender.sent[0].idType)
	assert.Equal(t, "text", sender.sent[0].msgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(sender.sent[0].content), &content))
	assert.Equal(t, "Submission sub-1 from PT Supplier ABC (Rp 16.000.000) was rejected by 0xCFO. Note: over budget", content["text"])
}

func TestNotifier_SendError(t *testing.T) {
	n := newNotifier(&fakeSender{err: errors.New("rate limited")}, Config{ReceiveID: "ou_cfo"}, zap.NewNop())

	err := n.NotifyEscalation(context.Background(), escalatedSubmission(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestMessenger_SendThroughSDK(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/tenant_access_token/internal"):
			_, _ = w.Write([]byte(`{"code": 0, "msg": "ok", "tenant_access_token": "t-test", "expire": 7200}`))
		case r.URL.Path == "/open-apis/im/v1/messages":
			assert.Equal(t, "open_id", r.URL.Query().Get("receive_id_type"))
			assert.Equal(t, "Bearer t-test", r.Header.Get("Authorization"))
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			_, _ = w.Write([]byte(`{"code": 0, "msg": "success", "data": {"message_id": "om_42"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfg := Config{AppID: "cli_test", AppSecret: "secret", BaseURL: srv.URL}
	m := NewMessenger(NewSDKClient(cfg, zap.NewNop()), zap.NewNop())

	content, err := textContent("hello")
	require.NoError(t, err)

	id, err := m.Send(context.Background(), "open_id", "ou_cfo", "text", content)
	require.NoError(t, err)
	assert.Equal(t, "om_42", id)
	assert.Equal(t, "ou_cfo", gotBody["receive_id"])
	assert.Equal(t, "text", gotBody["msg_type"])

	_, err = m.Send(context.Background(), "open_id", "", "text", content)
	assert.Error(t, err)
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{AppID: "a", AppSecret: "b"}.Enabled())
	assert.True(t, Config{AppID: "a", AppSecret: "b", ReceiveID: "c"}.Enabled())
}
