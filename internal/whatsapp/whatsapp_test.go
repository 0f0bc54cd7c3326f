package whatsapp

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
)

func TestParseTarget(t *testing.T) {
	jid, err := ParseTarget("+263 77 123 4567")
	require.NoError(t, err)
	assert.Equal(t, types.NewJID("263771234567", types.DefaultUserServer), jid)
	assert.False(t, IsGroup(jid))

	jid, err = ParseTarget("120363025246125486@g.us")
	require.NoError(t, err)
	assert.True(t, IsGroup(jid))

	_, err = ParseTarget("   ")
	assert.Error(t, err)
	_, err = ParseTarget("no digits")
	assert.Error(t, err)
}

func interactiveOf(t *testing.T, msg *waE2E.Message) *waE2E.InteractiveMessage {
	t.Helper()
	inner := msg.GetViewOnceMessage().GetMessage()
	require.NotNil(t, inner)
	assert.Equal(t, int32(2), inner.GetMessageContextInfo().GetDeviceListMetadataVersion())
	require.NotNil(t, inner.GetInteractiveMessage())
	return inner.GetInteractiveMessage()
}

func TestBuildInteractive_List(t *testing.T) {
	req := message.NewList(message.List{
		Header:     "🛍️ Results",
		Body:       "2 products found",
		ButtonText: "View",
		Sections: []message.Section{{
			Title: "Products",
			Rows: []message.Row{
				{ID: "!product p_1", Title: "Maize meal", Description: "ZWL 12.00"},
				{ID: "!product p_2", Title: "Cooking oil"},
			},
		}},
	})

	msg, err := buildInteractive(req, "Smart Bot")
	require.NoError(t, err)
	im := interactiveOf(t, msg)
	assert.Equal(t, "🛍️ Results", im.GetHeader().GetTitle())
	assert.Equal(t, "2 products found", im.GetBody().GetText())
	assert.Equal(t, "Smart Bot", im.GetFooter().GetText())

	buttons := im.GetNativeFlowMessage().GetButtons()
	require.Len(t, buttons, 1)
	assert.Equal(t, flowSingleSelect, buttons[0].GetName())

	var params singleSelectParams
	require.NoError(t, json.Unmarshal([]byte(buttons[0].GetButtonParamsJSON()), &params))
	assert.Equal(t, "View", params.Title)
	require.Len(t, params.Sections, 1)
	require.Len(t, params.Sections[0].Rows, 2)
	assert.Equal(t, "!product p_1", params.Sections[0].Rows[0].ID)
	assert.Equal(t, "ZWL 12.00", params.Sections[0].Rows[0].Description)
}

func TestBuildInteractive_Buttons(t *testing.T) {
	req := message.NewButtons(message.Buttons{
		Body:   "Order placed",
		Footer: "Thanks!",
		Buttons: []message.Button{
			{ID: "!track ord_1", Label: "Track"},
			{Label: "Pay online", URL: "https://pay.example.com/ord_1"},
		},
	})

	msg, err := buildInteractive(req, "Smart Bot")
	require.NoError(t, err)
	im := interactiveOf(t, msg)
	assert.Nil(t, im.GetHeader(), "no header without a title")
	assert.Equal(t, "Thanks!", im.GetFooter().GetText(), "request footer wins")

	buttons := im.GetNativeFlowMessage().GetButtons()
	require.Len(t, buttons, 2)
	assert.Equal(t, flowQuickReply, buttons[0].GetName())
	assert.JSONEq(t, `{"display_text":"Track","id":"!track ord_1"}`, buttons[0].GetButtonParamsJSON())
	assert.Equal(t, flowCTAURL, buttons[1].GetName())
	assert.JSONEq(t,
		`{"display_text":"Pay online","url":"https://pay.example.com/ord_1","merchant_url":"https://pay.example.com/ord_1"}`,
		buttons[1].GetButtonParamsJSON())
}

func TestBuildInteractive_RejectsText(t *testing.T) {
	_, err := buildInteractive(message.NewText("hi"), "")
	assert.Error(t, err)
	_, err = buildInteractive(message.Request{Kind: message.KindList}, "")
	assert.Error(t, err)
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("!cart")}, "!cart"},
		{"extended", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("hello")}}, "hello"},
		{"list reply", &waE2E.Message{ListResponseMessage: &waE2E.ListResponseMessage{
			SingleSelectReply: &waE2E.ListResponseMessage_SingleSelectReply{SelectedRowID: proto.String("!product p_9")},
		}}, "!product p_9"},
		{"button reply", &waE2E.Message{ButtonsResponseMessage: &waE2E.ButtonsResponseMessage{
			SelectedButtonID: proto.String("!track ord_1"),
		}}, "!track ord_1"},
		{"native flow reply", &waE2E.Message{InteractiveResponseMessage: &waE2E.InteractiveResponseMessage{
			Body: &waE2E.InteractiveResponseMessage_Body{Text: proto.String("Checkout")},
			InteractiveResponseMessage: &waE2E.InteractiveResponseMessage_NativeFlowResponseMessage_{
				NativeFlowResponseMessage: &waE2E.InteractiveResponseMessage_NativeFlowResponseMessage{
					Name:       proto.String(flowQuickReply),
					ParamsJSON: proto.String(`{"id":"!checkout"}`),
				},
			},
		}}, "!checkout"},
		{"native flow without id", &waE2E.Message{InteractiveResponseMessage: &waE2E.InteractiveResponseMessage{
			Body: &waE2E.InteractiveResponseMessage_Body{Text: proto.String("Checkout")},
			InteractiveResponseMessage: &waE2E.InteractiveResponseMessage_NativeFlowResponseMessage_{
				NativeFlowResponseMessage: &waE2E.InteractiveResponseMessage_NativeFlowResponseMessage{
					ParamsJSON: proto.String(`{}`),
				},
			},
		}}, "Checkout"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("!search shoes")}}, "!search shoes"},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractText(tt.msg))
		})
	}
}

func TestWALogger_Filters(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("debug", &buf)

	wl := newWALogger(log, "warn", "client")
	wl.Infof("quiet")
	wl.Debugf("quieter")
	assert.Empty(t, buf.String())

	wl.Sub("socket").Warnf("loud %d", 1)
	assert.Contains(t, buf.String(), "loud 1")
	assert.Contains(t, buf.String(), "client/socket")

	buf.Reset()
	newWALogger(log, "bogus", "x").Infof("dropped")
	assert.Empty(t, buf.String(), "unknown levels default to WARN")
}

func TestStripMentions(t *testing.T) {
	assert.Equal(t, "where is my order", stripMentions("@263771234567 where is my order"))
	assert.Equal(t, "hi there", stripMentions("hi @263771234567   there"))
	assert.Equal(t, "email me @ 5pm", stripMentions("email me @ 5pm"))
}
