package payment

import (
	"encoding/json"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v79"
)

// 本服务只处理这两类事件，其余类型直接确认收到，防止网关重投风暴
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
)

func IsRelevantEventType(eventType string) bool {
	return eventType == EventCheckoutCompleted || eventType == EventPaymentSucceeded
}

// CompletedEvent 已解析的支付完成事件，字段取值优先级见 parse 逻辑
type CompletedEvent struct {
	EventID       string // 会话/事件标识，幂等去重的键
	EventType     string
	PaymentStatus string
	CustomerEmail string
	Plan          string
	Raw           string // 原始对象快照，入库审计用
}

// IsPaid 支付状态是否为已支付的终态
func (e *CompletedEvent) IsPaid() bool {
	switch e.PaymentStatus {
	case "paid", "succeeded", "complete":
		return true
	}
	return false
}

// sessionPayload Stripe 事件对象里本服务关心的字段。
// payment_intent 在 checkout.session 里可能是字符串 ID，也可能是展开对象，
// 所以先留作 RawMessage 再尝试解析
type sessionPayload struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	PaymentStatus   string          `json:"payment_status"`
	Status          string          `json:"status"`
	PaymentIntent   json.RawMessage `json:"payment_intent"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

// ParseCompletedEvent 把 Stripe 事件解析成内部事件结构。
// 取值优先级（高到低）：
//   - 事件ID: id > session_id > 生成 sess_<uuid>
//   - 支付状态: payment_status > payment_intent.status > status
//   - 客户邮箱: customer_details.email > customer_email > metadata.email
//   - 套餐: metadata.plan > "Standard"
func ParseCompletedEvent(event stripe.Event) CompletedEvent {
	var raw []byte
	if event.Data != nil {
		raw = event.Data.Raw
	}

	var obj sessionPayload
	// 解析失败时各字段走默认值，事件本身仍然入库
	_ = json.Unmarshal(raw, &obj)

	out := CompletedEvent{
		EventType: string(event.Type),
		Raw:       string(raw),
	}

	switch {
	case obj.ID != "":
		out.EventID = obj.ID
	case obj.SessionID != "":
		out.EventID = obj.SessionID
	default:
		out.EventID = "sess_" + uuid.NewString()
	}

	switch {
	case obj.PaymentStatus != "":
		out.PaymentStatus = obj.PaymentStatus
	case intentStatus(obj.PaymentIntent) != "":
		out.PaymentStatus = intentStatus(obj.PaymentIntent)
	case obj.Status != "":
		out.PaymentStatus = obj.Status
	default:
		out.PaymentStatus = "unknown"
	}

	switch {
	case obj.CustomerDetails != nil && obj.CustomerDetails.Email != "":
		out.CustomerEmail = obj.CustomerDetails.Email
	case obj.CustomerEmail != "":
		out.CustomerEmail = obj.CustomerEmail
	case obj.Metadata["email"] != "":
		out.CustomerEmail = obj.Metadata["email"]
	}

	if plan := obj.Metadata["plan"]; plan != "" {
		out.Plan = plan
	} else {
		out.Plan = "Standard"
	}

	return out
}

// intentStatus payment_intent 是展开对象时取其 status，是字符串 ID 时返回空
func intentStatus(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var intent struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &intent); err != nil {
		return ""
	}
	return intent.Status
}
