// Package twitchchat adapts Twitch IRC chat to the relay's paged chat
// source contract.
//
// Watch targets of the form twitch:<channel> route here. ResolveSession
// joins the channel with one IRC client and returns the channel name as
// the session id; incoming messages are buffered in a bounded ring
// (oldest dropped past capacity) and served in arrival order through
// FetchPage, so the engine polls Twitch exactly like the page-based
// YouTube feed. After the IRC connection ends the next empty page is
// reported as the stream having ended.
//
// Credentials: TWITCH_BOT_USERNAME plus TWITCH_OAUTH_TOKEN when set;
// otherwise the anonymous read-only IRC login is used, which is enough
// for relaying.
package twitchchat
