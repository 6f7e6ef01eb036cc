package stubservice

import (
	"time"

	"github.com/example/skinscan/internal/apiclient"
)

var legalBodies = map[string]string{
	apiclient.DocPrivacyPolicy: "# Privacy policy\n\nScans are analysed and discarded unless you opt in to storage.",
	apiclient.DocTermsOfUse:    "# Terms of use\n\nResults describe cosmetic appearance only and are not medical advice.",
	apiclient.DocConsentCopy:   "# Your choices\n\nProgress images and donated samples are kept only while you allow it.",
}

func legalDoc(key, version string, effective time.Time) apiclient.LegalDoc {
	return apiclient.LegalDoc{
		Key:          key,
		Version:      version,
		EffectiveAt:  effective.UTC().Format("2006-01-02T15:04:05"),
		BodyMarkdown: legalBodies[key],
	}
}

// legalBundle serves every document at the same configured version.
func legalBundle(version string, effective time.Time) apiclient.LegalBundle {
	return apiclient.LegalBundle{
		PrivacyPolicy: legalDoc(apiclient.DocPrivacyPolicy, version, effective),
		TermsOfUse:    legalDoc(apiclient.DocTermsOfUse, version, effective),
		ConsentCopy:   legalDoc(apiclient.DocConsentCopy, version, effective),
	}
}

// stampVersions fills versions the client did not name with the current one.
func stampVersions(v apiclient.LegalVersions, current string) apiclient.LegalVersions {
	if v.PrivacyVersion == "" {
		v.PrivacyVersion = current
	}
	if v.TermsVersion == "" {
		v.TermsVersion = current
	}
	if v.ConsentVersion == "" {
		v.ConsentVersion = current
	}
	return v
}
