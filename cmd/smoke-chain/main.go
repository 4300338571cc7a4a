// smoke-chain exercises a running pactum-api instance end to end: create a
// contract, append two events, check the linkage and run the verifier.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

type receipt struct {
	EventID     string  `json:"event_id"`
	ContentHash string  `json:"content_hash"`
	PrevHash    *string `json:"prev_hash"`
	Sequence    uint64  `json:"sequence"`
}

type createResponse struct {
	ContractID string  `json:"contract_id"`
	State      string  `json:"state"`
	Receipt    receipt `json:"receipt"`
}

type verifyResponse struct {
	Valid      bool `json:"valid"`
	Length     int  `json:"length"`
	Violations []struct {
		Description string `json:"description"`
	} `json:"violations"`
}

func main() {
	base := os.Getenv("PACTUM_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 60 * time.Second}

	token := obtainToken(client, base)

	var created createResponse
	post(client, base+"/v1/contracts", token,
		map[string]any{"notarized": false, "financed": false}, &created)
	if created.Receipt.PrevHash != nil {
		log.Fatalf("genesis prev_hash not null: %v", *created.Receipt.PrevHash)
	}
	if len(created.Receipt.ContentHash) != 64 {
		log.Fatalf("genesis content hash not 64-hex: %q", created.Receipt.ContentHash)
	}

	var second receipt
	post(client, base+"/v1/contracts/"+created.ContractID+"/events", token,
		map[string]any{
			"kind":    "TERMS_ACCEPTED",
			"payload": map[string]any{"price": 250000},
		}, &second)
	if second.PrevHash == nil || *second.PrevHash != created.Receipt.ContentHash {
		log.Fatalf("second event does not link to genesis: %v", second.PrevHash)
	}

	var third receipt
	post(client, base+"/v1/contracts/"+created.ContractID+"/events", token,
		map[string]any{
			"kind":    "SIGNATURE_RECORDED",
			"payload": map[string]any{"party": "buyer"},
		}, &third)
	if third.PrevHash == nil || *third.PrevHash != second.ContentHash {
		log.Fatalf("third event does not link to second: %v", third.PrevHash)
	}

	var verdict verifyResponse
	get(client, base+"/v1/contracts/"+created.ContractID+"/chain/verify", token, &verdict)
	if !verdict.Valid || verdict.Length != 3 {
		log.Fatalf("chain verify failed: %+v", verdict)
	}

	fmt.Printf("chain smoke test passed: contract=%s length=%d\n", created.ContractID, verdict.Length)
}

func obtainToken(client *http.Client, base string) string {
	var resp struct {
		Token string `json:"token"`
	}
	post(client, base+"/v1/auth/token", "",
		map[string]any{"party": "smoke", "roles": []string{"agent"}}, &resp)
	if resp.Token == "" {
		log.Fatal("empty token")
	}
	return resp.Token
}

func post(client *http.Client, url, token string, body, out any) {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("request %s: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	doJSON(client, req, out)
}

func get(client *http.Client, url, token string, out any) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		log.Fatalf("request %s: %v", url, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	doJSON(client, req, out)
}

func doJSON(client *http.Client, req *http.Request, out any) {
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Fatalf("%s %s: status %d", req.Method, req.URL, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode %s: %v", req.URL, err)
		}
	}
}
