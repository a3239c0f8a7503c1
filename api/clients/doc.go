/*
Package clients provides a typed client for the registry API.

RegistryClient signs every mutating request with the caller's secp256k1
key (see cryptoutils.SignRequest). Error answers come back as *APIError,
which unwraps to the interfaces sentinels:

	_, err := client.ProvideData(ctx, "eth-usd", "3150.25")
	if errors.Is(err, interfaces.ErrUnauthorized) {
	    // the key is not a registered provider
	}

GetDataResponse and GetRequest return nil, nil when nothing is stored.

ResolveServerURL locates a registry through a DNS SRV record.
*/
package clients
