package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"xchain-router.backend/internal/domain/entities"
	"xchain-router.backend/internal/execution"
)

func newSafeHTTPServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Skipf("skip: httptest server unavailable in this environment: %v", r)
		}
	}()
	return httptest.NewServer(handler)
}

func chainMoonbeam() entities.ChainId {
	return entities.NewParachainId(entities.RelayPolkadot, 2004)
}

func TestFindExtrinsic_FoundAndSuccessful(t *testing.T) {
	srv := newSafeHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "0xdeadbeef", req.Variables["txHash"])

		_, _ = w.Write([]byte(`{"data":{"extrinsics":[{"success":true}]}}`))
	}))
	defer srv.Close()

	c := NewClient(map[string]string{chainMoonbeam().String(): srv.URL})
	found, success, err := c.FindExtrinsic(context.Background(), chainMoonbeam(), "0xdeadbeef", 100, 200)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, success)
}

func TestFindExtrinsic_NotFoundYet(t *testing.T) {
	srv := newSafeHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"extrinsics":[]}}`))
	}))
	defer srv.Close()

	c := NewClient(map[string]string{chainMoonbeam().String(): srv.URL})
	found, _, err := c.FindExtrinsic(context.Background(), chainMoonbeam(), "0xmissing", 100, 200)
	require.NoError(t, err)
	require.False(t, found)
}

func TestFindExtrinsic_UnconfiguredChainErrors(t *testing.T) {
	c := NewClient(map[string]string{})
	_, _, err := c.FindExtrinsic(context.Background(), chainMoonbeam(), "0xdeadbeef", 100, 200)
	require.Error(t, err)
}

func TestFindExtrinsic_GraphqlErrorPropagates(t *testing.T) {
	srv := newSafeHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"indexer lagging"}]}`))
	}))
	defer srv.Close()

	c := NewClient(map[string]string{chainMoonbeam().String(): srv.URL})
	_, _, err := c.FindExtrinsic(context.Background(), chainMoonbeam(), "0xdeadbeef", 100, 200)
	require.ErrorContains(t, err, "indexer lagging")
}

func TestFindAssetIssuance_MatchesExpectedAmount(t *testing.T) {
	srv := newSafeHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"assetIssuances":[{"amount":"1000"},{"amount":"5000"}]}}`))
	}))
	defer srv.Close()

	var destAddr entities.Address20
	destAddr[0] = 0xAB
	c := NewClient(map[string]string{chainMoonbeam().String(): srv.URL})

	found, amount, err := c.FindAssetIssuance(context.Background(), execution.AssetIssuanceQuery{
		Chain:          chainMoonbeam(),
		Token:          entities.TokenId{Chain: chainMoonbeam(), Kind: entities.NativeTokenKind()},
		DestAddr:       entities.NewAddress20(destAddr),
		MinBlock:       100,
		MaxBlock:       200,
		ExpectedAmount: uint256.NewInt(5000),
	})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(5000), amount.Uint64())
}

func TestFindAssetIssuance_NoExpectedAmountTakesFirst(t *testing.T) {
	srv := newSafeHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"assetIssuances":[{"amount":"1000"}]}}`))
	}))
	defer srv.Close()

	var destAddr entities.Address20
	c := NewClient(map[string]string{chainMoonbeam().String(): srv.URL})

	found, amount, err := c.FindAssetIssuance(context.Background(), execution.AssetIssuanceQuery{
		Chain:    chainMoonbeam(),
		Token:    entities.TokenId{Chain: chainMoonbeam(), Kind: entities.NativeTokenKind()},
		DestAddr: entities.NewAddress20(destAddr),
		MinBlock: 100,
		MaxBlock: 200,
	})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(1000), amount.Uint64())
}

func TestFindAssetIssuance_NothingMatches(t *testing.T) {
	srv := newSafeHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"assetIssuances":[]}}`))
	}))
	defer srv.Close()

	var destAddr entities.Address20
	c := NewClient(map[string]string{chainMoonbeam().String(): srv.URL})

	found, _, err := c.FindAssetIssuance(context.Background(), execution.AssetIssuanceQuery{
		Chain:    chainMoonbeam(),
		Token:    entities.TokenId{Chain: chainMoonbeam(), Kind: entities.NativeTokenKind()},
		DestAddr: entities.NewAddress20(destAddr),
		MinBlock: 100,
		MaxBlock: 200,
	})
	require.NoError(t, err)
	require.False(t, found)
}
