package tier

import (
	"errors"
	"reflect"
	"testing"

	"github.com/iliyamo/beat-license-registry/internal/model"
	"github.com/iliyamo/beat-license-registry/internal/repository"
)

func TestDeliveredFiles(t *testing.T) {
	cases := []struct {
		tier model.TierType
		want []string
	}{
		{model.TierBasic, []string{"mp3", "wav"}},
		{model.TierPremium, []string{"mp3", "wav", "stems"}},
		{model.TierExclusive, []string{"mp3", "wav", "stems", "trackouts"}},
		{model.TierUnlimited, []string{"mp3", "wav", "stems", "trackouts"}},
		{model.TierType("platinum"), []string{"mp3", "wav"}},
		{model.TierType(""), []string{"mp3", "wav"}},
	}
	for _, tc := range cases {
		if got := DeliveredFiles(tc.tier); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("DeliveredFiles(%q) = %v, want %v", tc.tier, got, tc.want)
		}
	}
}

func TestDeliveredFilesReturnsFreshSlice(t *testing.T) {
	a := DeliveredFiles(model.TierBasic)
	a[0] = "flac"
	if b := DeliveredFiles(model.TierBasic); b[0] != "mp3" {
		t.Fatalf("mapping was mutated through a previous result: %v", b)
	}
}

func TestFind(t *testing.T) {
	tiers := []model.Tier{
		{Type: model.TierBasic, Enabled: true, Name: "Basic", PriceCents: 1000},
		{Type: model.TierPremium, Enabled: false, Name: "Premium", PriceCents: 2500},
	}

	got, err := Find(tiers, model.TierBasic)
	if err != nil {
		t.Fatalf("find basic: %v", err)
	}
	if got.Name != "Basic" || got.PriceCents != 1000 {
		t.Fatalf("unexpected tier: %+v", got)
	}

	for _, tt := range []model.TierType{model.TierPremium, model.TierExclusive} {
		_, err := Find(tiers, tt)
		if !errors.Is(err, ErrUnavailable) || !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("find %s: expected not found, got %v", tt, err)
		}
	}
}

func TestEnabledKeepsCatalogOrder(t *testing.T) {
	tiers := []model.Tier{
		{Type: model.TierExclusive, Enabled: true},
		{Type: model.TierBasic, Enabled: false},
		{Type: model.TierPremium, Enabled: true},
	}
	got := Enabled(tiers)
	if len(got) != 2 || got[0].Type != model.TierExclusive || got[1].Type != model.TierPremium {
		t.Fatalf("unexpected enabled tiers: %+v", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		tiers []model.Tier
		ok    bool
	}{
		{"valid", []model.Tier{{Type: model.TierBasic, PriceCents: 1000}, {Type: model.TierExclusive, PriceCents: 50000}}, true},
		{"empty", nil, true},
		{"unknown type", []model.Tier{{Type: "gold"}}, false},
		{"duplicate", []model.Tier{{Type: model.TierBasic}, {Type: model.TierBasic}}, false},
		{"negative price", []model.Tier{{Type: model.TierPremium, PriceCents: -1}}, false},
	}
	for _, tc := range cases {
		err := Validate(tc.tiers)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, repository.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", tc.name, err)
		}
	}
}
