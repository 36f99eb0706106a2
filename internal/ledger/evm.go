package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/punchamoorthee/galleryops/internal/models"
)

// ABI of the artwork marketplace contract. Only the surface this service
// touches is declared.
const marketABI = `[
  {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"artworks","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"title","type":"string"},{"name":"artist","type":"string"},{"name":"description","type":"string"},{"name":"price","type":"uint256"},{"name":"forSale","type":"bool"}]},
  {"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"mintArtwork","stateMutability":"nonpayable","inputs":[{"name":"title","type":"string"},{"name":"artist","type":"string"},{"name":"description","type":"string"}],"outputs":[]},
  {"type":"function","name":"setArtworkPrice","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"buyArtwork","stateMutability":"payable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelSale","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"ArtworkMinted","anonymous":false,"inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"owner","type":"address","indexed":true}]}
]`

const (
	submitGasLimit      = 300_000
	receiptPollInterval = 2 * time.Second
)

// EVMClient talks to the marketplace contract over JSON-RPC and signs
// submissions with a single configured key.
type EVMClient struct {
	rpc      *ethclient.Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	sender   common.Address
	chainID  *big.Int

	// Serializes nonce assignment across concurrent submissions.
	nonceMu sync.Mutex
}

func NewEVMClient(ctx context.Context, rpcURL, contractHex, signerKeyHex string) (*EVMClient, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ledger dial failed: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(marketABI))
	if err != nil {
		return nil, fmt.Errorf("contract ABI parse failed: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(signerKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id query failed: %w", err)
	}

	return &EVMClient{
		rpc:      rpc,
		abi:      parsed,
		contract: common.HexToAddress(contractHex),
		key:      key,
		sender:   crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
	}, nil
}

func (c *EVMClient) Close() {
	c.rpc.Close()
}

func (c *EVMClient) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return c.abi.Unpack(method, out)
}

func (c *EVMClient) TotalSupply(ctx context.Context) (int64, error) {
	out, err := c.call(ctx, "totalSupply")
	if err != nil {
		return 0, fmt.Errorf("totalSupply call failed: %w", err)
	}
	return out[0].(*big.Int).Int64(), nil
}

func (c *EVMClient) ReadArtwork(ctx context.Context, tokenID int64) (*models.Artwork, error) {
	id := big.NewInt(tokenID)

	// ownerOf reverts for nonexistent ids, which doubles as the existence
	// check the contract exposes.
	ownerOut, err := c.call(ctx, "ownerOf", id)
	if err != nil {
		if strings.Contains(err.Error(), "revert") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ownerOf call failed: %w", err)
	}

	artOut, err := c.call(ctx, "artworks", id)
	if err != nil {
		return nil, fmt.Errorf("artworks call failed: %w", err)
	}

	art := &models.Artwork{
		TokenID:     tokenID,
		Title:       artOut[0].(string),
		Artist:      artOut[1].(string),
		Description: artOut[2].(string),
		Price:       artOut[3].(*big.Int).Int64(),
		ForSale:     artOut[4].(bool),
		Owner:       ownerOut[0].(common.Address).Hex(),
	}
	return art, nil
}

func (c *EVMClient) Submit(ctx context.Context, op Operation) (string, error) {
	var (
		data  []byte
		value *big.Int
		err   error
	)
	switch op.Type {
	case models.OpMint:
		data, err = c.abi.Pack("mintArtwork", op.Title, op.Artist, op.Description)
	case models.OpSetPrice:
		data, err = c.abi.Pack("setArtworkPrice", big.NewInt(op.TokenID), big.NewInt(op.Price))
	case models.OpBuy:
		data, err = c.abi.Pack("buyArtwork", big.NewInt(op.TokenID))
		value = big.NewInt(op.Value)
	case models.OpCancelSale:
		data, err = c.abi.Pack("cancelSale", big.NewInt(op.TokenID))
	default:
		return "", &SubmissionError{Reason: fmt.Sprintf("unknown operation %q", op.Type)}
	}
	if err != nil {
		return "", &SubmissionError{Reason: err.Error()}
	}
	if value == nil {
		value = new(big.Int)
	}

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	nonce, err := c.rpc.PendingNonceAt(ctx, c.sender)
	if err != nil {
		return "", fmt.Errorf("nonce query failed: %w", err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("gas price query failed: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Value:    value,
		Gas:      submitGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("signing failed: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return "", &SubmissionError{Reason: err.Error()}
	}
	return signed.Hash().Hex(), nil
}

func (c *EVMClient) AwaitConfirmation(ctx context.Context, ref string) (*Confirmation, error) {
	hash := common.HexToHash(ref)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, &RevertError{Reason: "execution reverted"}
			}
			return c.confirmationFromReceipt(receipt), nil
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet.
		default:
			return nil, fmt.Errorf("receipt query failed: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *EVMClient) confirmationFromReceipt(receipt *types.Receipt) *Confirmation {
	conf := &Confirmation{}
	mintedTopic := c.abi.Events["ArtworkMinted"].ID
	for _, lg := range receipt.Logs {
		if len(lg.Topics) > 1 && lg.Topics[0] == mintedTopic {
			conf.TokenID = new(big.Int).SetBytes(lg.Topics[1].Bytes()).Int64()
		}
	}
	return conf
}
