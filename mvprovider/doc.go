// Package mvprovider contains HTTP clients for the external services
// the map vote depends on:
// the cs2kz map API, which supplies the map pool ([*PoolClient]),
// and the Steam published file service, which supplies workshop titles ([*SteamClient]).
package mvprovider
