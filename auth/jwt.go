package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Claims is the subset of JWT claims the SDK cares about. The tokens
// are parsed UNVERIFIED: the backend validates signatures, we only need
// routing metadata out of the payload.
type Claims struct {
	Subject   string
	Email     string
	AccountID string
	PlanType  string
	ExpiresAt time.Time
}

// authClaimPath addresses the nested auth claim; the dots in the claim
// name itself are escaped so gjson does not treat them as separators.
const authClaimPath = `https://api\.openai\.com/auth`

// ParseClaims decodes the payload segment of a JWT without verifying
// its signature.
func ParseClaims(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("token is not a JWT")
	}
	payload, err := decodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode jwt payload: %w", err)
	}
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("jwt payload is not valid json")
	}

	claims := &Claims{
		Subject:   gjson.GetBytes(payload, "sub").String(),
		Email:     gjson.GetBytes(payload, "email").String(),
		AccountID: gjson.GetBytes(payload, authClaimPath+".chatgpt_account_id").String(),
		PlanType:  gjson.GetBytes(payload, authClaimPath+".chatgpt_plan_type").String(),
	}
	if exp := gjson.GetBytes(payload, "exp").Int(); exp > 0 {
		claims.ExpiresAt = time.Unix(exp, 0)
	}
	return claims, nil
}

func decodeSegment(seg string) ([]byte, error) {
	if pad := len(seg) % 4; pad != 0 {
		seg += strings.Repeat("=", 4-pad)
	}
	return base64.URLEncoding.DecodeString(seg)
}
