package browser

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// scriptResult mirrors the object returned by the page scripts below.
type scriptResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

const jsClick = `(function(selector) {
	let el;
	try {
		el = document.querySelector(selector);
	} catch (e) {
		return {status: 'error', code: 'INVALID_PARAMETERS', error: 'Invalid selector: ' + selector};
	}
	if (el instanceof HTMLElement) {
		el.click();
		return {status: 'success', message: 'Clicked element with selector: ' + selector};
	}
	return {status: 'error', code: 'ELEMENT_NOT_FOUND', error: 'Element not found for selector: ' + selector};
})(%s)`

const jsType = `(function(selector, text) {
	let el;
	try {
		el = document.querySelector(selector);
	} catch (e) {
		return {status: 'error', code: 'INVALID_PARAMETERS', error: 'Invalid selector: ' + selector};
	}
	if (el instanceof HTMLInputElement || el instanceof HTMLTextAreaElement) {
		el.value = text;
		el.dispatchEvent(new Event('input', {bubbles: true, cancelable: true}));
		return {status: 'success', message: 'Typed text into element with selector: ' + selector};
	}
	return {status: 'error', code: 'ELEMENT_NOT_FOUND', error: 'Input element not found for selector: ' + selector};
})(%s, %s)`

// jsArg encodes v as a JavaScript literal.
func jsArg(v string) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Marshalling a string only fails on encoder bugs.
		return `""`
	}
	return string(b)
}

func clickScript(selector string) string {
	return fmt.Sprintf(jsClick, jsArg(selector))
}

func typeScript(selector, text string) string {
	return fmt.Sprintf(jsType, jsArg(selector), jsArg(text))
}
