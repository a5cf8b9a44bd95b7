package model

import "fmt"

type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkSepolia Network = "sepolia"
	NetworkHolesky Network = "holesky"
	NetworkPolygon Network = "polygon"
	NetworkAmoy    Network = "amoy"
	NetworkBase    Network = "base"
	NetworkHardhat Network = "hardhat"
	NetworkGanache Network = "ganache"
)

var networksByChainID = map[uint64]Network{
	1:        NetworkMainnet,
	11155111: NetworkSepolia,
	17000:    NetworkHolesky,
	137:      NetworkPolygon,
	80002:    NetworkAmoy,
	8453:     NetworkBase,
	31337:    NetworkHardhat,
	1337:     NetworkGanache,
}

func (n Network) String() string {
	return string(n)
}

// NetworkForChainID names well-known chains; anything else is "chain-<id>".
func NetworkForChainID(chainID uint64) Network {
	if n, ok := networksByChainID[chainID]; ok {
		return n
	}
	return Network(fmt.Sprintf("chain-%d", chainID))
}
