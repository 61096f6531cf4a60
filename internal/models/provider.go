package models

// Provider identifies the destination platform a scheduled post publishes to.
type Provider string

const (
	ProviderInstagram Provider = "instagram"
	ProviderFacebook  Provider = "facebook"
	ProviderYoutube   Provider = "youtube"
	ProviderTiktok    Provider = "tiktok"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderInstagram, ProviderFacebook, ProviderYoutube, ProviderTiktok:
		return true
	}
	return false
}

func (p Provider) String() string {
	return string(p)
}
