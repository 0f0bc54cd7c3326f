package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
)

// NativeFlow button names understood by WhatsApp clients.
const (
	flowSingleSelect = "single_select"
	flowQuickReply   = "quick_reply"
	flowCTAURL       = "cta_url"
)

type selectRow struct {
	Header      string `json:"header"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ID          string `json:"id"`
}

type selectSection struct {
	Title string      `json:"title,omitempty"`
	Rows  []selectRow `json:"rows"`
}

type singleSelectParams struct {
	Title    string          `json:"title"`
	Sections []selectSection `json:"sections"`
}

type quickReplyParams struct {
	DisplayText string `json:"display_text"`
	ID          string `json:"id"`
}

type ctaURLParams struct {
	DisplayText string `json:"display_text"`
	URL         string `json:"url"`
	MerchantURL string `json:"merchant_url"`
}

// buildInteractive converts a list or buttons request into a NativeFlow
// interactive message wrapped in a view-once envelope, which is the shape
// current clients render.
func buildInteractive(req message.Request, footer string) (*waE2E.Message, error) {
	var (
		header, body string
		buttons      []*waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton
	)

	switch req.Kind {
	case message.KindList:
		if req.List == nil {
			return nil, errors.New("list request without list")
		}
		l := req.List
		header, body = l.Header, l.Body
		if l.Footer != "" {
			footer = l.Footer
		}
		params := singleSelectParams{Title: l.ButtonText}
		for _, s := range l.Sections {
			sec := selectSection{Title: s.Title, Rows: make([]selectRow, 0, len(s.Rows))}
			for _, r := range s.Rows {
				sec.Rows = append(sec.Rows, selectRow{Title: r.Title, Description: r.Description, ID: r.ID})
			}
			params.Sections = append(params.Sections, sec)
		}
		b, err := nativeButton(flowSingleSelect, params)
		if err != nil {
			return nil, err
		}
		buttons = append(buttons, b)

	case message.KindButtons:
		if req.Buttons == nil {
			return nil, errors.New("buttons request without buttons")
		}
		bt := req.Buttons
		header, body = bt.Header, bt.Body
		if bt.Footer != "" {
			footer = bt.Footer
		}
		for _, btn := range bt.Buttons {
			var (
				b   *waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton
				err error
			)
			if btn.URL != "" {
				b, err = nativeButton(flowCTAURL, ctaURLParams{DisplayText: btn.Label, URL: btn.URL, MerchantURL: btn.URL})
			} else {
				b, err = nativeButton(flowQuickReply, quickReplyParams{DisplayText: btn.Label, ID: btn.ID})
			}
			if err != nil {
				return nil, err
			}
			buttons = append(buttons, b)
		}

	default:
		return nil, fmt.Errorf("not an interactive kind: %s", req.Kind)
	}

	interactive := &waE2E.InteractiveMessage{
		Body: &waE2E.InteractiveMessage_Body{Text: proto.String(body)},
		InteractiveMessage: &waE2E.InteractiveMessage_NativeFlowMessage_{
			NativeFlowMessage: &waE2E.InteractiveMessage_NativeFlowMessage{
				Buttons:        buttons,
				MessageVersion: proto.Int32(1),
			},
		},
	}
	if header != "" {
		interactive.Header = &waE2E.InteractiveMessage_Header{
			Title:              proto.String(header),
			HasMediaAttachment: proto.Bool(false),
		}
	}
	if footer != "" {
		interactive.Footer = &waE2E.InteractiveMessage_Footer{Text: proto.String(footer)}
	}

	return &waE2E.Message{
		ViewOnceMessage: &waE2E.FutureProofMessage{
			Message: &waE2E.Message{
				MessageContextInfo: &waE2E.MessageContextInfo{
					DeviceListMetadata:        &waE2E.DeviceListMetadata{},
					DeviceListMetadataVersion: proto.Int32(2),
				},
				InteractiveMessage: interactive,
			},
		},
	}, nil
}

func nativeButton(name string, params any) (*waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", name, err)
	}
	return &waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton{
		Name:             proto.String(name),
		ButtonParamsJSON: proto.String(string(raw)),
	}, nil
}

// extractText returns the text of an inbound message. Taps on list rows and
// buttons come back as the row or button ID.
func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage().GetText() != "":
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetListResponseMessage() != nil:
		return msg.GetListResponseMessage().GetSingleSelectReply().GetSelectedRowID()
	case msg.GetButtonsResponseMessage() != nil:
		return msg.GetButtonsResponseMessage().GetSelectedButtonID()
	case msg.GetTemplateButtonReplyMessage() != nil:
		return msg.GetTemplateButtonReplyMessage().GetSelectedID()
	case msg.GetInteractiveResponseMessage() != nil:
		return nativeFlowReplyID(msg.GetInteractiveResponseMessage())
	case msg.GetImageMessage().GetCaption() != "":
		return msg.GetImageMessage().GetCaption()
	}
	return ""
}

func nativeFlowReplyID(resp *waE2E.InteractiveResponseMessage) string {
	flow := resp.GetNativeFlowResponseMessage()
	if flow == nil {
		return resp.GetBody().GetText()
	}
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(flow.GetParamsJSON()), &params); err != nil || params.ID == "" {
		return resp.GetBody().GetText()
	}
	return params.ID
}
