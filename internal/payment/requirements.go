package payment

// RequirementsBuilder assembles x402 requirements for a price quoted in a
// payment-method tag.
type RequirementsBuilder struct {
	Resource          string
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	Convert           AtomicConverter
}

func NewRequirementsBuilder(resource, description, mimeType string, maxTimeoutSeconds int) *RequirementsBuilder {
	if maxTimeoutSeconds <= 0 {
		maxTimeoutSeconds = 300
	}
	return &RequirementsBuilder{
		Resource:          resource,
		Description:       description,
		MimeType:          mimeType,
		MaxTimeoutSeconds: maxTimeoutSeconds,
		Convert:           ToAtomicAmount,
	}
}

// BuildRequirements resolves the network for the tag and prices the amount in
// atomic units. Converter errors are returned unchanged.
func (b *RequirementsBuilder) BuildRequirements(amount Decimal, paymentMethod, payTo string) (*PaymentRequirements, error) {
	network, err := NetworkOf(paymentMethod)
	if err != nil {
		return nil, err
	}

	convert := b.Convert
	if convert == nil {
		convert = ToAtomicAmount
	}
	atomic, err := convert(amount, network)
	if err != nil {
		return nil, err
	}

	return &PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           network,
		MaxAmountRequired: atomic.MaxAmountRequired,
		Resource:          b.Resource,
		Description:       b.Description,
		MimeType:          b.MimeType,
		PayTo:             payTo,
		MaxTimeoutSeconds: b.MaxTimeoutSeconds,
		Asset:             atomic.Asset.Address,
		Extra: map[string]interface{}{
			"name":    atomic.Asset.Name,
			"version": atomic.Asset.Version,
		},
	}, nil
}
