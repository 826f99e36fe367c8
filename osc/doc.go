// Copyright 2013 - 2015 Sebastian Ruml <sebastian.ruml@gmail.com>
// Copyright 2021 - 2022 Mendel Greenberg <mendel@chabad360.me>

//Package osc provides a bidirectional UDP channel for sending and receiving OpenSoundControl style messages.
//
//The wire format follows Open Sound Control 1.0 (http://opensoundcontrol.org/spec-1_0.html)
//for messages. Bundles, time tags and address pattern matching are not supported: a message is dispatched
//to the handler registered for exactly its address, or dropped.
//
//Features
//
//- Supports OSC messages with the following TypeTags:
//
//	'i' (int32)
//	'f' (float32)
//	's' (string)
//	'b' ([]byte)
//	'h' (int64)
//	'd' (float64)
//	'T' (true)
//	'F' (false)
//	'N' (nil)
//
//- A JSON codec ({"address": "/a", "args": [...]}) for peers that never spoke binary OSC.
//
//- One Channel per socket: sends to a fixed target, replies to senders and runs a
//background receive loop that feeds a Dispatcher.
//
//Errors
//
//Only a BindError from Open is meant to be fatal. A TransmitError is returned from a failed send and
//the caller may retry. A datagram that cannot be decoded (DecodeError) or that has no handler is
//logged and dropped; neither ever stops the receive loop.
//
//Usage
//
//  d := osc.NewDispatcher(slog.Default())
//  d.HandleFunc("/recordingStatus", func(msg *osc.Message) {
//      fmt.Println(msg)
//  })
//
//  ch, err := osc.Open(
//      osc.Endpoint{Host: "0.0.0.0", Port: 57121},
//      osc.Endpoint{Host: "127.0.0.1", Port: 57120},
//      d, osc.Options{},
//  )
//  if err != nil {
//      return err
//  }
//  defer ch.Close()
//
//  if err := ch.Listen(ctx); err != nil {
//      return err
//  }
//  ch.Send("/startRecording")
package osc
