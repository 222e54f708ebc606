// Package mirai encodes and decodes the JSON frames exchanged with a Mirai
// HTTP API websocket adapter on its /message channel.
//
// Inbound chat events arrive as {"syncId":"-1","data":{...}}. Commands are
// sent as {"syncId":"n","command":"...","content":{...}} and answered with a
// reply carrying the same sync id.
package mirai
