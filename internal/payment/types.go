package payment

// PaymentRequirements follows the x402 v1 requirements object.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	Resource          string                 `json:"resource"`
	Description       string                 `json:"description"`
	MimeType          string                 `json:"mimeType"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Asset             string                 `json:"asset"`
	OutputSchema      map[string]interface{} `json:"outputSchema,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// Authorization is the EIP-3009 TransferWithAuthorization message.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

type ExactEvmPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// PaymentPayload is what the X-PAYMENT header carries, base64 encoded.
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     ExactEvmPayload `json:"payload"`
}

type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}

// SignedPaymentAuthorization is handed to the seller's purchase tool.
type SignedPaymentAuthorization struct {
	SignedTransaction string  `json:"signedTransaction"`
	PaymentMethod     string  `json:"paymentMethod"`
	Amount            Decimal `json:"amount"`
	RecipientAddress  string  `json:"recipientAddress"`
}

// VerificationResult is the outcome of a verify or settle call. It never
// carries a Go error; failures are described by Message and Error.
type VerificationResult struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	ResponseHeader string          `json:"responseHeader,omitempty"`
	Payload        *PaymentPayload `json:"payload,omitempty"`
	Payer          string          `json:"payer,omitempty"`
	Transaction    string          `json:"transaction,omitempty"`
	Error          string          `json:"error,omitempty"`
}
